package prober

import (
	"context"
	"log"
	"net"
	"time"

	"CF_IP_SpeedTest_Go/pkg/model"
)

// DialContextFunc 与 net.Dialer.DialContext 同形，便于测试注入
type DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Prober 对单个端点执行两阶段探测:
// 先测 TCP 连接延迟，通过后再按需测下载速度
type Prober struct {
	TCPTimeout       time.Duration
	TCPRetries       int
	SpeedTestTimeout time.Duration
	RateLimitMB      float64 // 下载限速(MB/s)，0 为不限速

	// dialContext 为 nil 时使用按端点构造的 net.Dialer
	dialContext DialContextFunc
}

// New 创建探测器，超时与重试以秒为单位的配置在上层换算
func New(tcpTimeout time.Duration, tcpRetries int, speedTimeout time.Duration, rateLimitMB float64) *Prober {
	return &Prober{
		TCPTimeout:       tcpTimeout,
		TCPRetries:       tcpRetries,
		SpeedTestTimeout: speedTimeout,
		RateLimitMB:      rateLimitMB,
	}
}

// dialEndpoint 建立到目标地址的 TCP 连接
// 端点指定了源端口时绑定为本地地址
func (p *Prober) dialEndpoint(ep model.Endpoint, address string) (net.Conn, error) {
	if p.dialContext != nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.TCPTimeout)
		defer cancel()
		return p.dialContext(ctx, "tcp", address)
	}

	dialer := net.Dialer{
		Timeout:   p.TCPTimeout,
		KeepAlive: 30 * time.Second,
	}
	if ep.SourcePort > 0 {
		dialer.LocalAddr = &net.TCPAddr{Port: ep.SourcePort}
	}
	return dialer.Dial("tcp", address)
}

// Probe 完整测试单个端点
//
// 第一阶段失败时直接返回失败结果，不再测速。
// 第二阶段失败只记录日志，不改变 Success 状态。
func (p *Prober) Probe(ep model.Endpoint, testSpeed, useTLS bool, customSpeedURL string) model.ProbeResult {
	result := model.ProbeResult{IP: ep.IP, Port: ep.Port}

	delayMs, kind, err := p.TestTCPDelay(ep)
	if err != nil {
		result.ErrorKind = kind
		result.ErrorDetail = err.Error()
		return result
	}
	result.Success = true
	result.TCPDelayMs = &delayMs

	if testSpeed {
		speed, _, err := p.TestDownloadSpeed(ep, useTLS, customSpeedURL)
		if err != nil {
			log.Printf("%s:%d 速度测试失败: %v", ep.IP, ep.Port, err)
		} else {
			result.DownloadSpeedMBps = &speed
		}
	}

	return result
}
