package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config 结构用于映射 config.yaml 文件的内容
// 环境变量（前缀 CFST_）可以覆盖文件中的同名字段
type Config struct {
	// 并发与超时
	Workers          int `yaml:"workers" envconfig:"WORKERS"`                     // 测试并发数
	TCPTimeout       int `yaml:"tcp_timeout" envconfig:"TCP_TIMEOUT"`             // TCP 连接超时(秒)
	TCPRetries       int `yaml:"tcp_retries" envconfig:"TCP_RETRIES"`             // TCP 超时/网络错误后的重试次数
	SpeedTestTimeout int `yaml:"speed_timeout" envconfig:"SPEED_TIMEOUT"`         // 下载测速超时(秒)

	// 候选 IP 生成
	Port          int    `yaml:"port" envconfig:"PORT"`                     // 测试端口
	IATA          string `yaml:"iata" envconfig:"IATA"`                     // IATA 机场代码筛选(可选)
	MaxIPs        int    `yaml:"max_ips" envconfig:"MAX_IPS"`               // 生成的候选 IP 数量
	QualityFilter bool   `yaml:"quality_filter" envconfig:"QUALITY_FILTER"` // 是否启用 IP 段质量分级
	RandomSelect  bool   `yaml:"random_select" envconfig:"RANDOM_SELECT"`   // 是否随机抽取候选 IP

	// 测速
	TestSpeed            bool    `yaml:"test_speed" envconfig:"TEST_SPEED"`                         // 是否测试下载速度
	UseTLS               string  `yaml:"use_tls" envconfig:"USE_TLS"`                               // "auto"/"true"/"false"
	SpeedTestURL         string  `yaml:"speed_test_url" envconfig:"SPEED_TEST_URL"`                 // 自定义测速地址 "host/path"
	SpeedTestRateLimitMB float64 `yaml:"speed_rate_limit_mb" envconfig:"SPEED_RATE_LIMIT_MB"`       // 下载限速(MB/s)，0 为不限速

	// 结果筛选
	MaxDelay float64 `yaml:"max_delay" envconfig:"MAX_DELAY"` // 最大延迟限制(ms)
	MinSpeed float64 `yaml:"min_speed" envconfig:"MIN_SPEED"` // 最小速度限制(MB/s)
	TopN     int     `yaml:"top_n" envconfig:"TOP_N"`         // 输出前 N 个最优结果

	// 输出
	SaveResults bool   `yaml:"save_results" envconfig:"SAVE_RESULTS"` // 是否保存结果文件
	Format      string `yaml:"format" envconfig:"FORMAT"`             // csv 或 json
	OutputDir   string `yaml:"output_dir" envconfig:"OUTPUT_DIR"`     // 结果输出目录
}

// Default 返回带默认值的配置
func Default() *Config {
	return &Config{
		Workers:          10,
		TCPTimeout:       5,
		TCPRetries:       2,
		SpeedTestTimeout: 30,
		Port:             443,
		MaxIPs:           100,
		QualityFilter:    true,
		TestSpeed:        true,
		UseTLS:           "auto",
		SpeedTestURL:     "speed.mingri.icu/50MB.7z",
		MaxDelay:         300,
		TopN:             10,
		SaveResults:      true,
		Format:           "csv",
		OutputDir:        "results",
	}
}

// LoadConfig 从指定路径加载 YAML 配置文件并应用环境变量覆盖
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取配置文件 '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// .env 不存在时静默忽略，生产环境可能直接使用真实环境变量
	_ = godotenv.Load()
	if err := envconfig.Process("cfst", cfg); err != nil {
		return nil, fmt.Errorf("处理环境变量覆盖失败: %w", err)
	}

	cfg.Normalize()
	return cfg, nil
}

// ResolveTLS 根据 use_tls 配置决定测速是否走 TLS
// "auto" 时跟随端点按端口推断出的 TLS 属性
func (c *Config) ResolveTLS(endpointTLS bool) bool {
	switch c.UseTLS {
	case "true":
		return true
	case "false":
		return false
	default:
		return endpointTLS
	}
}

// Normalize 修正明显不合法的配置值，避免下游出现死锁或除零
func (c *Config) Normalize() {
	if c.Workers <= 0 {
		log.Printf("警告: workers 被设置为 %d，自动调整为默认值 10", c.Workers)
		c.Workers = 10
	}
	if c.TCPTimeout <= 0 {
		c.TCPTimeout = 5
	}
	if c.TCPRetries < 0 {
		c.TCPRetries = 0
	}
	if c.SpeedTestTimeout <= 0 {
		c.SpeedTestTimeout = 30
	}
	if c.Port <= 0 || c.Port > 65535 {
		c.Port = 443
	}
	if c.MaxIPs <= 0 {
		c.MaxIPs = 100
	}
	if c.Format != "csv" && c.Format != "json" {
		c.Format = "csv"
	}
	if c.OutputDir == "" {
		c.OutputDir = "results"
	}
}
