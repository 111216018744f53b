package engine

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CF_IP_SpeedTest_Go/pkg/model"
)

// stubProber 用固定函数代替真实探测
type stubProber struct {
	fn func(ep model.Endpoint) model.ProbeResult
}

func (s stubProber) Probe(ep model.Endpoint, testSpeed, useTLS bool, customSpeedURL string) model.ProbeResult {
	return s.fn(ep)
}

func makeEndpoints(n int) []model.Endpoint {
	endpoints := make([]model.Endpoint, 0, n)
	for i := 0; i < n; i++ {
		endpoints = append(endpoints, model.Endpoint{
			IP:   fmt.Sprintf("203.0.113.%d", i+1),
			Port: 443,
		})
	}
	return endpoints
}

func okResult(ep model.Endpoint) model.ProbeResult {
	delay := 42.0
	return model.ProbeResult{IP: ep.IP, Port: ep.Port, Success: true, TCPDelayMs: &delay}
}

func TestRunBatchReturnsAllResults(t *testing.T) {
	endpoints := makeEndpoints(25)
	p := stubProber{fn: okResult}

	results := RunBatch(endpoints, p, false, false, "", 5, nil)
	require.Len(t, results, len(endpoints))

	seen := make(map[string]bool)
	for _, r := range results {
		seen[r.Key()] = true
	}
	for _, ep := range endpoints {
		assert.True(t, seen[ep.Key()], "缺少端点 %s 的结果", ep.Key())
	}
}

func TestRunBatchContainsPanic(t *testing.T) {
	endpoints := makeEndpoints(10)
	faultyIP := endpoints[3].IP
	p := stubProber{fn: func(ep model.Endpoint) model.ProbeResult {
		if ep.IP == faultyIP {
			panic("boom")
		}
		return okResult(ep)
	}}

	results := RunBatch(endpoints, p, false, false, "", 4, nil)
	require.Len(t, results, len(endpoints))

	// 故障端点转换为失败结果，其余任务不受影响
	for _, r := range results {
		if r.IP == faultyIP {
			assert.False(t, r.Success)
			assert.Equal(t, model.ErrKindUnexpectedFault, r.ErrorKind)
			assert.NotEmpty(t, r.ErrorDetail)
		} else {
			assert.True(t, r.Success)
		}
	}
}

func TestRunBatchProgressCallback(t *testing.T) {
	endpoints := makeEndpoints(8)
	p := stubProber{fn: okResult}

	var calls int
	lastCompleted := 0
	results := RunBatch(endpoints, p, false, false, "", 3,
		func(completed, total int, result model.ProbeResult) {
			calls++
			assert.Equal(t, len(endpoints), total)
			// 完成计数严格递增
			assert.Equal(t, lastCompleted+1, completed)
			lastCompleted = completed
		})

	assert.Len(t, results, len(endpoints))
	assert.Equal(t, len(endpoints), calls)
}

func TestRunBatchSlowCallbackDoesNotStallWorkers(t *testing.T) {
	endpoints := makeEndpoints(12)
	var probed atomic.Int32
	p := stubProber{fn: func(ep model.Endpoint) model.ProbeResult {
		probed.Add(1)
		return okResult(ep)
	}}

	start := time.Now()
	results := RunBatch(endpoints, p, false, false, "", 12,
		func(completed, total int, result model.ProbeResult) {
			time.Sleep(10 * time.Millisecond)
		})

	require.Len(t, results, len(endpoints))
	assert.Equal(t, int32(len(endpoints)), probed.Load())
	// 回调总耗时约 120ms；工作协程并发执行不受回调速度限制
	assert.Less(t, time.Since(start), time.Second)
}

func TestRunBatchEmptyInput(t *testing.T) {
	assert.Empty(t, RunBatch(nil, stubProber{fn: okResult}, false, false, "", 4, nil))
}

func TestFormatProgress(t *testing.T) {
	delay := 12.34
	speed := 5.6
	msg := FormatProgress(3, 10, model.ProbeResult{
		IP: "1.0.0.1", Port: 443, Success: true,
		TCPDelayMs: &delay, DownloadSpeedMBps: &speed,
	})
	assert.Contains(t, msg, "[3/10 30.0%]")
	assert.Contains(t, msg, "[OK]")
	assert.Contains(t, msg, "1.0.0.1:443")
	assert.Contains(t, msg, "12.34ms")
	assert.Contains(t, msg, "5.60MB/s")

	failMsg := FormatProgress(1, 2, model.ProbeResult{
		IP: "1.0.0.2", Port: 443,
		ErrorKind: model.ErrKindConnectTimeout, ErrorDetail: "连接超时",
	})
	assert.Contains(t, failMsg, "[FAIL]")
	assert.Contains(t, failMsg, "N/A")
}
