package output

import (
	"fmt"

	"CF_IP_SpeedTest_Go/pkg/model"
)

// HumanReadableResult 定义了用于最终文件输出的扁平化数据结构
// 探测结果按 (ip, port) 关联回端点元数据
type HumanReadableResult struct {
	IP                string   `json:"ip"`
	Port              int      `json:"port"`
	SourcePort        int      `json:"source_port"`
	TLS               bool     `json:"tls"`
	Datacenter        string   `json:"datacenter"`
	Region            string   `json:"region"`
	Country           string   `json:"country"`
	City              string   `json:"city"`
	IATA              string   `json:"iata"`
	ASN               int      `json:"asn"`
	TCPDelayMs        *float64 `json:"tcp_delay_ms"`
	DownloadSpeedMBps *float64 `json:"download_speed_mbps"`
	Success           bool     `json:"success"`
	ErrorKind         string   `json:"error_kind,omitempty"`
	ErrorDetail       string   `json:"error_detail,omitempty"`
}

// endpointIndex 建立 (ip, port) 到端点的查找表
func endpointIndex(endpoints []model.Endpoint) map[string]model.Endpoint {
	index := make(map[string]model.Endpoint, len(endpoints))
	for _, ep := range endpoints {
		index[ep.Key()] = ep
	}
	return index
}

// ToHumanReadable 将探测结果与端点元数据合并为输出格式
func ToHumanReadable(results []model.ProbeResult, endpoints []model.Endpoint) []HumanReadableResult {
	index := endpointIndex(endpoints)
	out := make([]HumanReadableResult, 0, len(results))
	for _, r := range results {
		item := HumanReadableResult{
			IP:                r.IP,
			Port:              r.Port,
			TCPDelayMs:        r.TCPDelayMs,
			DownloadSpeedMBps: r.DownloadSpeedMBps,
			Success:           r.Success,
			ErrorKind:         string(r.ErrorKind),
			ErrorDetail:       r.ErrorDetail,
		}
		if ep, ok := index[r.Key()]; ok {
			item.SourcePort = ep.SourcePort
			item.TLS = ep.TLS
			item.Datacenter = ep.Datacenter
			item.Region = ep.Region
			item.Country = ep.Country
			item.City = ep.City
			item.IATA = ep.IATA
			item.ASN = ep.ASN
		}
		out = append(out, item)
	}
	return out
}

// SummaryLines 生成控制台展示用的优选结果列表
func SummaryLines(best []model.ProbeResult) []string {
	lines := make([]string, 0, len(best))
	for i, r := range best {
		delayStr := "N/A"
		if r.TCPDelayMs != nil {
			delayStr = fmt.Sprintf("%.2fms", *r.TCPDelayMs)
		}
		speedStr := "N/A"
		if r.DownloadSpeedMBps != nil {
			speedStr = fmt.Sprintf("%.2fMB/s", *r.DownloadSpeedMBps)
		}
		lines = append(lines, fmt.Sprintf("%d. %s:%d - 延迟: %s, 速度: %s", i+1, r.IP, r.Port, delayStr, speedStr))
	}
	return lines
}
