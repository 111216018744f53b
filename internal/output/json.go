package output

import (
	"encoding/json"
	"fmt"
	"os"

	"CF_IP_SpeedTest_Go/pkg/model"
)

// WriteJSONFile 将探测结果写入到指定的 JSON 文件中
func WriteJSONFile(filePath string, results []model.ProbeResult, endpoints []model.Endpoint) error {
	items := ToHumanReadable(results, endpoints)

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("无法将结果序列化为 JSON: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("无法写入 JSON 文件 '%s': %w", filePath, err)
	}
	return nil
}
