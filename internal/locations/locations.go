package locations

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Location IATA 机场位置信息
type Location struct {
	IATA    string  `json:"iata"`
	City    string  `json:"city"`
	Region  string  `json:"region"`
	Country string  `json:"cca2"` // ISO 3166-1 alpha-2 国家代码
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// LocationDB 存储 IATA 代码到位置信息的只读映射
// 启动时加载一次，之后在各组件之间按引用传递，不再修改
type LocationDB struct {
	byIATA map[string]Location
	all    []Location
}

// LoadFromFile 从指定的 JSON 文件加载位置数据
func LoadFromFile(filePath string) (*LocationDB, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取位置文件 '%s': %w", filePath, err)
	}

	var entries []Location
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("解析位置文件 JSON 失败: %w", err)
	}

	db := &LocationDB{byIATA: make(map[string]Location)}
	for _, entry := range entries {
		if entry.IATA == "" {
			continue
		}
		key := strings.ToUpper(entry.IATA)
		if _, exists := db.byIATA[key]; exists {
			continue
		}
		db.byIATA[key] = entry
		db.all = append(db.all, entry)
	}

	if len(db.all) == 0 {
		return nil, fmt.Errorf("位置文件 '%s' 中没有有效条目", filePath)
	}
	return db, nil
}

// Get 根据 IATA 代码查找位置信息，大小写不敏感
func (db *LocationDB) Get(iata string) (Location, bool) {
	loc, ok := db.byIATA[strings.ToUpper(iata)]
	return loc, ok
}

// All 返回全部位置条目
func (db *LocationDB) All() []Location {
	return db.all
}

// FilterByRegion 按地区名称筛选位置
func (db *LocationDB) FilterByRegion(region string) []Location {
	var out []Location
	for _, loc := range db.all {
		if strings.EqualFold(loc.Region, region) {
			out = append(out, loc)
		}
	}
	return out
}

// FilterByCountry 按国家代码筛选位置
func (db *LocationDB) FilterByCountry(countryCode string) []Location {
	var out []Location
	for _, loc := range db.all {
		if strings.EqualFold(loc.Country, countryCode) {
			out = append(out, loc)
		}
	}
	return out
}
