package prober

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"CF_IP_SpeedTest_Go/pkg/model"
)

// retryInterval 重试前的固定等待时间
const retryInterval = 500 * time.Millisecond

// TestTCPDelay 测试到端点的 TCP 连接延迟(毫秒)
//
// 超时和一般网络错误会在固定重试预算内重试；
// 连接被明确拒绝视为结论性失败，不重试。
func (p *Prober) TestTCPDelay(ep model.Endpoint) (float64, model.ErrorKind, error) {
	address := net.JoinHostPort(ep.IP, strconv.Itoa(ep.Port))

	var lastKind model.ErrorKind
	var lastErr error
	for attempt := 0; attempt <= p.TCPRetries; attempt++ {
		start := time.Now()
		conn, err := p.dialEndpoint(ep, address)
		if err == nil {
			delayMs := float64(time.Since(start).Microseconds()) / 1000.0
			_ = conn.Close()
			return delayMs, "", nil
		}

		lastKind = classifyDialError(err)
		lastErr = err
		if lastKind == model.ErrKindConnectionRefused {
			break
		}
		if attempt < p.TCPRetries {
			time.Sleep(retryInterval)
		}
	}

	return 0, lastKind, fmt.Errorf("TCP 连接失败 (重试 %d 次): %w", p.TCPRetries, lastErr)
}

// classifyDialError 将拨号错误归入错误分类
func classifyDialError(err error) model.ErrorKind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.ErrKindConnectTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return model.ErrKindConnectionRefused
	}
	return model.ErrKindTransportError
}
