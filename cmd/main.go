package main

import (
	_ "embed"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"CF_IP_SpeedTest_Go/internal/config"
	"CF_IP_SpeedTest_Go/internal/engine"
	"CF_IP_SpeedTest_Go/internal/output"
	"CF_IP_SpeedTest_Go/internal/server"
)

//go:embed default_config.yaml
var defaultConfigData []byte

//go:embed locations.json
var defaultLocationsData []byte

// ensureFile 检查文件是否存在于可执行文件目录，不存在则用默认数据创建
func ensureFile(fileName string, defaultData []byte) (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("无法获取可执行文件路径: %w", err)
	}
	exeDir := filepath.Dir(exePath)
	filePath := filepath.Join(exeDir, fileName)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		if err := os.WriteFile(filePath, defaultData, 0644); err != nil {
			return "", fmt.Errorf("无法写入默认文件 %s: %w", fileName, err)
		}
		log.Printf("首次运行，已在 %s 生成默认 %s 文件", exeDir, fileName)
	} else if err != nil {
		return "", fmt.Errorf("检查文件 %s 时出错: %w", fileName, err)
	}
	return filePath, nil
}

func main() {
	// 命令行标志，显式给出的值覆盖配置文件
	cliMode := flag.Bool("cli", false, "以命令行模式运行")
	serverPort := flag.Int("server-port", 8080, "Web 模式监听端口")
	iata := flag.String("iata", "", "IATA 机场代码筛选")
	port := flag.Int("port", 0, "测试端口")
	maxIPs := flag.Int("max-ips", 0, "最大测试 IP 数量")
	workers := flag.Int("workers", 0, "并发测试数")
	noSpeed := flag.Bool("no-speed", false, "不测试下载速度，仅测 TCP 延迟")
	maxDelay := flag.Float64("max-delay", -1, "最大延迟限制(ms)")
	minSpeed := flag.Float64("min-speed", -1, "最小速度限制(MB/s)")
	topN := flag.Int("top", 0, "显示前 N 个最优 IP")
	format := flag.String("format", "", "输出格式 (csv 或 json)")
	outputDir := flag.String("output-dir", "", "结果输出目录")
	noSave := flag.Bool("no-save", false, "不保存测试结果到文件")
	flag.Parse()

	cfgPath, err := ensureFile("config.yaml", defaultConfigData)
	if err != nil {
		log.Fatalf("初始化配置文件失败: %v", err)
	}
	locationsPath, err := ensureFile("locations.json", defaultLocationsData)
	if err != nil {
		log.Fatalf("初始化 locations.json 失败: %v", err)
	}

	if !*cliMode {
		// Web 服务器模式(默认)
		server.Start(*serverPort, cfgPath, locationsPath)
		return
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("加载配置文件失败: %v", err)
	}

	// 应用命令行覆盖
	if *iata != "" {
		cfg.IATA = *iata
	}
	if *port > 0 {
		cfg.Port = *port
	}
	if *maxIPs > 0 {
		cfg.MaxIPs = *maxIPs
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *noSpeed {
		cfg.TestSpeed = false
	}
	if *maxDelay >= 0 {
		cfg.MaxDelay = *maxDelay
	}
	if *minSpeed >= 0 {
		cfg.MinSpeed = *minSpeed
	}
	if *topN > 0 {
		cfg.TopN = *topN
	}
	if *format != "" {
		cfg.Format = *format
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *noSave {
		cfg.SaveResults = false
	}
	cfg.Normalize()

	runCli(cfg, locationsPath)
}

// runCli 命令行模式: 跑完整流水线并输出/保存结果
func runCli(cfg *config.Config, locationsPath string) {
	log.Println("--- CF_IP_SpeedTest 以命令行模式运行 ---")

	report, err := engine.Run(cfg, locationsPath, func(message string) {
		log.Println(message)
	})
	if err != nil {
		log.Fatalf("引擎运行时出错: %v", err)
	}

	log.Printf("测试完成! 找到 %d 个优选 IP:", len(report.Best))
	for _, line := range output.SummaryLines(report.Best) {
		fmt.Println(line)
	}

	if cfg.SaveResults {
		if err := saveReport(cfg, report); err != nil {
			log.Fatalf("保存结果失败: %v", err)
		}
	}

	log.Println("--- 所有任务已完成 ---")
}

// saveReport 按配置格式保存全部探测结果
func saveReport(cfg *config.Config, report *engine.Report) error {
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("无法创建输出目录 '%s': %w", cfg.OutputDir, err)
	}

	var filePath string
	var err error
	switch cfg.Format {
	case "json":
		filePath = filepath.Join(cfg.OutputDir, "cf_speedtest_results.json")
		err = output.WriteJSONFile(filePath, report.Results, report.Endpoints)
	default:
		filePath = filepath.Join(cfg.OutputDir, "cf_speedtest_results.csv")
		err = output.WriteCSVFile(filePath, report.Results, report.Endpoints)
	}
	if err != nil {
		return err
	}

	log.Printf("结果已保存到: %s", filePath)
	return nil
}
