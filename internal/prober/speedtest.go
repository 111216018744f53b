package prober

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/VividCortex/ewma"
	"golang.org/x/time/rate"

	"CF_IP_SpeedTest_Go/pkg/model"
)

const (
	// downloadTarget 单次测速的目标下载量
	downloadTarget = 5 * 1024 * 1024
	// minSampleSize 低于该下载量的样本不计入有效速度
	minSampleSize = 100 * 1024
	// readBufferSize 下载读取缓冲区大小
	readBufferSize = 64 * 1024

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// speedTarget 一个测速端点: 请求路径 + 强制使用的 Host/SNI 域名
type speedTarget struct {
	path string
	host string
}

// fallbackTargets 公共 CDN 备用测速端点，按优先级排列
var fallbackTargets = []speedTarget{
	{"/", "cloudflare.com"},
	{"/cdn-cgi/trace", "cloudflare.com"},
	{"/", "www.google.com"},
	{"/generate_204", "connectivitycheck.gstatic.com"},
}

// speedTargets 构建测速端点列表，自定义地址("host/path" 格式)排在最前
func speedTargets(customURL string) []speedTarget {
	var targets []speedTarget
	if customURL != "" {
		host, path, ok := strings.Cut(customURL, "/")
		if ok && host != "" {
			targets = append(targets, speedTarget{path: "/" + path, host: host})
		}
	}
	return append(targets, fallbackTargets...)
}

// TestDownloadSpeed 对单个端点执行下载速度测试，返回速度(MB/s)
//
// 依次尝试各测速端点，第一个下载量达到有效样本下限的端点即为结果。
// 由于目标以裸 IP 寻址，请求的 Host 头和 TLS ServerName 都强制设为
// 测速端点的域名，与端点自身地址无关。
func (p *Prober) TestDownloadSpeed(ep model.Endpoint, useTLS bool, customSpeedURL string) (float64, model.ErrorKind, error) {
	scheme := "http"
	if useTLS {
		scheme = "https"
	}
	address := net.JoinHostPort(ep.IP, strconv.Itoa(ep.Port))

	lastKind := model.ErrKindInsufficientSample
	var lastErr error
	for _, target := range speedTargets(customSpeedURL) {
		speed, kind, err := p.downloadFrom(ep, scheme, address, target)
		if err == nil {
			return speed, "", nil
		}
		lastKind = kind
		lastErr = err
	}

	return 0, lastKind, fmt.Errorf("所有测速端点均不可用: %w", lastErr)
}

// downloadFrom 从单个测速端点下载并计算速度
func (p *Prober) downloadFrom(ep model.Endpoint, scheme, address string, target speedTarget) (float64, model.ErrorKind, error) {
	// 不论请求里的主机名是什么，始终拨号到被测端点本身
	dial := p.dialContext
	if dial == nil {
		dial = func(ctx context.Context, network, _ string) (net.Conn, error) {
			dialer := net.Dialer{Timeout: p.TCPTimeout}
			if ep.SourcePort > 0 {
				dialer.LocalAddr = &net.TCPAddr{Port: ep.SourcePort}
			}
			return dialer.DialContext(ctx, network, address)
		}
	}

	client := &http.Client{
		Timeout: p.SpeedTestTimeout,
		Transport: &http.Transport{
			DialContext:        dial,
			DisableCompression: true,
			DisableKeepAlives:  true,
			TLSClientConfig: &tls.Config{
				ServerName:         target.host,
				InsecureSkipVerify: true, // 按 IP 直连，证书主机名必然不匹配
			},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	url := fmt.Sprintf("%s://%s%s", scheme, address, target.path)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, model.ErrKindTransportError, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Host = target.host
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")

	// 计时从发起请求开始，建连/TLS 握手/首字节等待都计入测速分母
	start := time.Now()
	response, err := client.Do(req)
	if err != nil {
		return 0, model.ErrKindTransportError, fmt.Errorf("请求 %s 失败: %w", url, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 400 {
		return 0, model.ErrKindHTTPStatusError, fmt.Errorf("无效的状态码: %d", response.StatusCode)
	}

	downloaded, elapsed := p.readBody(response, start)
	if downloaded < minSampleSize || elapsed <= 0 {
		return 0, model.ErrKindInsufficientSample, fmt.Errorf("下载数据不足 (%d bytes)", downloaded)
	}

	speed := float64(downloaded) / (1024 * 1024) / elapsed.Seconds()
	log.Printf("%s:%d 从 %s 下载速度: %.2f MB/s (下载 %.2fMB 用时 %.2fs)",
		ep.IP, ep.Port, target.path, speed, float64(downloaded)/1024/1024, elapsed.Seconds())
	return speed, "", nil
}

// readBody 读取响应体直到达到目标下载量、流结束或超时，
// 返回累计字节数和从 start(请求发起时刻)算起的耗时
func (p *Prober) readBody(response *http.Response, start time.Time) (int64, time.Duration) {
	deadline := start.Add(p.SpeedTestTimeout)

	var limiter *rate.Limiter
	if p.RateLimitMB > 0 {
		bytesPerSec := p.RateLimitMB * 1024 * 1024
		limiter = rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
	}
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	// 按时间片统计瞬时速度的滑动平均，用于排查速度波动
	timeSlice := p.SpeedTestTimeout / 100
	smoothed := ewma.NewMovingAverage()
	sliceStart := start
	var sliceBytes int64

	buffer := make([]byte, readBufferSize)
	var downloaded int64
	for downloaded < downloadTarget {
		now := time.Now()
		if now.After(deadline) {
			break
		}
		if elapsed := now.Sub(sliceStart); elapsed >= timeSlice {
			smoothed.Add(float64(sliceBytes) / elapsed.Seconds())
			sliceStart = now
			sliceBytes = 0
		}

		if limiter != nil {
			if err := limiter.WaitN(ctx, len(buffer)); err != nil {
				break
			}
		}

		n, err := response.Body.Read(buffer)
		downloaded += int64(n)
		sliceBytes += int64(n)
		if err != nil {
			break
		}
	}
	elapsed := time.Since(start)

	if v := smoothed.Value(); v > 0 {
		log.Printf("平滑下载速度: %.2f MB/s", v/1024/1024)
	}
	return downloaded, elapsed
}
