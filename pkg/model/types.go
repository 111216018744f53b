package model

import "fmt"

// ErrorKind 标识一次探测失败的类别
type ErrorKind string

const (
	// ErrKindConnectTimeout TCP 连接超时
	ErrKindConnectTimeout ErrorKind = "connect_timeout"
	// ErrKindConnectionRefused 连接被对端明确拒绝
	ErrKindConnectionRefused ErrorKind = "connection_refused"
	// ErrKindTransportError 其他底层网络错误
	ErrKindTransportError ErrorKind = "transport_error"
	// ErrKindHTTPStatusError 测速端点返回了 4xx/5xx 状态码
	ErrKindHTTPStatusError ErrorKind = "http_status_error"
	// ErrKindInsufficientSample 下载数据量不足以计算速度
	ErrKindInsufficientSample ErrorKind = "insufficient_sample"
	// ErrKindUnexpectedFault 在调度器边界捕获的意外故障
	ErrKindUnexpectedFault ErrorKind = "unexpected_fault"
)

// securePorts Cloudflare 支持 TLS 的标准端口集合
var securePorts = map[int]bool{
	443:  true,
	2053: true,
	2083: true,
	2087: true,
	2096: true,
	8443: true,
}

// IsSecurePort 判断端口是否属于 TLS 端口集合
func IsSecurePort(port int) bool {
	return securePorts[port]
}

// Endpoint 表示一个待测的 CDN 候选节点，由生成器构造后不再修改
type Endpoint struct {
	IP         string
	Port       int
	SourcePort int // 出站源端口，0 表示由系统分配
	TLS        bool
	Datacenter string
	Region     string
	Country    string
	City       string
	IATA       string
	ASN        int
}

// Key 返回 (ip, port) 形式的唯一键，用于批次内去重和结果关联
func (e Endpoint) Key() string {
	return fmt.Sprintf("%s:%d", e.IP, e.Port)
}

// ProbeResult 包含对单个节点的完整探测结果
// 不变式: TCPDelayMs 当且仅当 Success 为 true 时有值；
// DownloadSpeedMBps 仅在测速阶段成功时有值
type ProbeResult struct {
	IP                string
	Port              int
	TCPDelayMs        *float64
	DownloadSpeedMBps *float64
	Success           bool
	ErrorKind         ErrorKind
	ErrorDetail       string
}

// Key 返回与 Endpoint.Key 一致的关联键
func (r ProbeResult) Key() string {
	return fmt.Sprintf("%s:%d", r.IP, r.Port)
}
