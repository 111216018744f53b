package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"CF_IP_SpeedTest_Go/pkg/model"
)

// WriteCSVFile 将探测结果写入到指定的 CSV 文件中
// 只保存有延迟数据的结果，端点元数据按 (ip, port) 关联
func WriteCSVFile(filePath string, results []model.ProbeResult, endpoints []model.Endpoint) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("无法创建 CSV 文件 '%s': %w", filePath, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"IP Address",
		"Port",
		"Source Port",
		"TLS",
		"Datacenter",
		"Region",
		"Country",
		"City",
		"IATA",
		"ASN",
		"TCP Delay (ms)",
		"Download Speed (MB/s)",
		"Status",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("写入 CSV 表头失败: %w", err)
	}

	index := endpointIndex(endpoints)
	for _, r := range results {
		// 延迟为空的结果没有展示价值，跳过
		if r.TCPDelayMs == nil {
			continue
		}

		var ep model.Endpoint
		if found, ok := index[r.Key()]; ok {
			ep = found
		}

		speedStr := ""
		if r.DownloadSpeedMBps != nil {
			speedStr = fmt.Sprintf("%.2f", *r.DownloadSpeedMBps)
		}
		status := "OK"
		if !r.Success {
			status = fmt.Sprintf("FAIL: %s", r.ErrorDetail)
		}

		row := []string{
			r.IP,
			strconv.Itoa(r.Port),
			strconv.Itoa(ep.SourcePort),
			map[bool]string{true: "Yes", false: "No"}[ep.TLS],
			ep.Datacenter,
			ep.Region,
			ep.Country,
			ep.City,
			ep.IATA,
			strconv.Itoa(ep.ASN),
			fmt.Sprintf("%.2f", *r.TCPDelayMs),
			speedStr,
			status,
		}
		if err := writer.Write(row); err != nil {
			// 记录错误但继续尝试写入其他行
			fmt.Fprintf(os.Stderr, "警告: 写入 CSV 行失败: %v\n", err)
		}
	}

	return writer.Error()
}
