package engine

import (
	"fmt"
	"log"
	"sync"
	"time"

	"CF_IP_SpeedTest_Go/internal/config"
	"CF_IP_SpeedTest_Go/internal/generator"
	"CF_IP_SpeedTest_Go/internal/locations"
	"CF_IP_SpeedTest_Go/internal/prober"
	"CF_IP_SpeedTest_Go/internal/ranker"
	"CF_IP_SpeedTest_Go/pkg/model"
)

// Prober 抽象单端点探测，便于在测试中替换
type Prober interface {
	Probe(ep model.Endpoint, testSpeed, useTLS bool, customSpeedURL string) model.ProbeResult
}

// BatchProgressFunc 每完成一个端点的探测后被调用一次
type BatchProgressFunc func(completed, total int, result model.ProbeResult)

// ProgressCallback 用于向调用方报告流水线进度的文本回调
type ProgressCallback func(message string)

// RunBatch 并发探测一批端点，返回与输入数量相等的结果列表
//
// 工作协程把结果写入容量为 total 的缓冲通道，由单一收集循环
// 消费: 追加结果并同步调用进度回调。回调再慢也只会推迟收集，
// 不会阻塞任何工作协程。结果完成顺序不保证与输入顺序一致。
func RunBatch(endpoints []model.Endpoint, p Prober, testSpeed, useTLS bool, customSpeedURL string, workers int, onProgress BatchProgressFunc) []model.ProbeResult {
	total := len(endpoints)
	if total == 0 {
		return nil
	}
	if workers <= 0 {
		log.Printf("警告: 并发数被设置为 %d，自动调整为默认值 10", workers)
		workers = 10
	}

	resultCh := make(chan model.ProbeResult, total)
	semaphore := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, ep := range endpoints {
		wg.Add(1)
		go func(ep model.Endpoint) {
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
				wg.Done()
			}()
			resultCh <- probeWithRecover(p, ep, testSpeed, useTLS, customSpeedURL)
		}(ep)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]model.ProbeResult, 0, total)
	completed := 0
	for result := range resultCh {
		results = append(results, result)
		completed++
		if onProgress != nil {
			onProgress(completed, total, result)
		}
	}
	return results
}

// probeWithRecover 把探测中的意外故障转换为失败结果，
// 保证单个端点的故障不影响同批次的其他任务
func probeWithRecover(p Prober, ep model.Endpoint, testSpeed, useTLS bool, customSpeedURL string) (result model.ProbeResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("探测 %s:%d 时发生意外故障: %v", ep.IP, ep.Port, r)
			result = model.ProbeResult{
				IP:          ep.IP,
				Port:        ep.Port,
				ErrorKind:   model.ErrKindUnexpectedFault,
				ErrorDetail: fmt.Sprintf("%v", r),
			}
		}
	}()
	return p.Probe(ep, testSpeed, useTLS, customSpeedURL)
}

// Report 一次完整流水线运行的产出
type Report struct {
	Endpoints []model.Endpoint    // 本次生成的候选端点
	Results   []model.ProbeResult // 全部探测结果(未过滤)
	Best      []model.ProbeResult // 过滤排序后的最优子集
}

// Run 启动 IP 优选流水线:
// 生成候选端点 -> 并发两阶段探测 -> 过滤排序
func Run(cfg *config.Config, locationsPath string, progressCb ProgressCallback) (*Report, error) {
	if progressCb == nil {
		progressCb = func(string) {}
	}

	// --- 1. 初始化数据源 ---
	progressCb("步骤 1/4: 初始化位置数据...")
	locDB, err := locations.LoadFromFile(locationsPath)
	if err != nil {
		return nil, fmt.Errorf("加载 locations.json 失败: %w", err)
	}

	// --- 2. 生成候选端点 ---
	progressCb(fmt.Sprintf("步骤 2/4: 生成候选端点 (port=%d, iata=%s, 数量=%d)...",
		cfg.Port, orDefault(cfg.IATA, "不限"), cfg.MaxIPs))
	gen := generator.New(locDB)
	gen.QualityFilter = cfg.QualityFilter
	gen.RandomSelect = cfg.RandomSelect
	endpoints := gen.Endpoints(cfg.Port, cfg.MaxIPs, cfg.IATA)
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("未能生成任何候选端点")
	}
	progressCb(fmt.Sprintf("成功生成 %d 个候选端点。", len(endpoints)))

	// --- 3. 并发探测 ---
	useTLS := cfg.ResolveTLS(endpoints[0].TLS)
	progressCb(fmt.Sprintf("步骤 3/4: 开始探测 (并发=%d, %s)...",
		cfg.Workers, map[bool]string{true: "TLS/HTTPS", false: "HTTP"}[useTLS]))

	pb := prober.New(
		time.Duration(cfg.TCPTimeout)*time.Second,
		cfg.TCPRetries,
		time.Duration(cfg.SpeedTestTimeout)*time.Second,
		cfg.SpeedTestRateLimitMB,
	)
	results := RunBatch(endpoints, pb, cfg.TestSpeed, useTLS, cfg.SpeedTestURL, cfg.Workers,
		func(completed, total int, result model.ProbeResult) {
			progressCb(FormatProgress(completed, total, result))
		})

	successCount := 0
	for _, r := range results {
		if r.Success {
			successCount++
		}
	}
	progressCb(fmt.Sprintf("探测完成，成功: %d/%d", successCount, len(results)))

	// --- 4. 过滤排序 ---
	progressCb("步骤 4/4: 筛选最优结果...")
	best := ranker.FilterBest(results, cfg.MaxDelay, cfg.MinSpeed, cfg.TopN)
	progressCb(fmt.Sprintf("找到 %d 个优选 IP。", len(best)))

	return &Report{Endpoints: endpoints, Results: results, Best: best}, nil
}

// FormatProgress 生成单条进度消息:
// [done/total pct] [OK|FAIL] ip:port 延迟 速度
func FormatProgress(completed, total int, r model.ProbeResult) string {
	status := "[FAIL]"
	if r.Success {
		status = "[OK]"
	}
	delayStr := "N/A"
	if r.TCPDelayMs != nil {
		delayStr = fmt.Sprintf("%.2fms", *r.TCPDelayMs)
	}
	speedStr := "N/A"
	if r.DownloadSpeedMBps != nil {
		speedStr = fmt.Sprintf("%.2fMB/s", *r.DownloadSpeedMBps)
	}
	percentage := float64(completed) / float64(total) * 100
	return fmt.Sprintf("[%d/%d %.1f%%] %s %s:%d 延迟:%s 速度:%s",
		completed, total, percentage, status, r.IP, r.Port, delayStr, speedStr)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
