package ranker

import (
	"sort"

	"CF_IP_SpeedTest_Go/pkg/model"
)

// FilterBest 从探测结果中筛选最优端点
//
// 过滤规则: 只保留连接成功且延迟有值的结果；maxDelayMs > 0 时
// 丢弃延迟超限的结果；minSpeedMBps > 0 时丢弃速度缺失或不达标的结果。
// 排序: 延迟升序，延迟相同时速度降序(缺失速度按 0 处理)。
// topN > 0 时截断到前 N 个。空输入返回空列表。
func FilterBest(results []model.ProbeResult, maxDelayMs, minSpeedMBps float64, topN int) []model.ProbeResult {
	valid := make([]model.ProbeResult, 0, len(results))
	for _, r := range results {
		if !r.Success || r.TCPDelayMs == nil {
			continue
		}
		if maxDelayMs > 0 && *r.TCPDelayMs > maxDelayMs {
			continue
		}
		if minSpeedMBps > 0 && (r.DownloadSpeedMBps == nil || *r.DownloadSpeedMBps < minSpeedMBps) {
			continue
		}
		valid = append(valid, r)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		if *valid[i].TCPDelayMs != *valid[j].TCPDelayMs {
			return *valid[i].TCPDelayMs < *valid[j].TCPDelayMs
		}
		return speedOrZero(valid[i]) > speedOrZero(valid[j])
	})

	if topN > 0 && len(valid) > topN {
		valid = valid[:topN]
	}
	return valid
}

func speedOrZero(r model.ProbeResult) float64 {
	if r.DownloadSpeedMBps == nil {
		return 0
	}
	return *r.DownloadSpeedMBps
}
