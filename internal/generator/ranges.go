package generator

// OfficialIPv4Ranges Cloudflare 官方公布的 IPv4 Anycast 地址段
// 数据来源: https://www.cloudflare.com/ips/
var OfficialIPv4Ranges = []string{
	"173.245.48.0/20",
	"103.21.244.0/22",
	"103.22.200.0/22",
	"103.31.4.0/22",
	"141.101.64.0/18",
	"108.162.192.0/18",
	"190.93.240.0/20",
	"188.114.96.0/20",
	"197.234.240.0/22",
	"198.41.128.0/17",
	"162.158.0.0/15",
	"104.16.0.0/13", // 北美主力段
	"104.24.0.0/14",
	"172.64.0.0/13",
	"131.0.72.0/22",
}

// 质量分级基于大规模连通性实测数据:
// premium   TCP 连接成功率 >80%
// fallback  TCP 连接成功率 40-80%
// deprecated 连接成功率极低，永久排除，不参与生成

var premiumRanges = []string{
	"104.16.0.0/13",    // 北美核心段，连接稳定
	"104.24.0.0/14",    // 备用核心段
	"108.162.192.0/18", // 高速 CDN 段
}

var fallbackRanges = []string{
	"188.114.96.0/20", // 欧洲段，延迟稍高
}

var deprecatedRanges = []string{
	"198.41.128.0/17",
	"162.158.0.0/15",
	"172.64.0.0/13",
	"173.245.48.0/20",
	"103.21.244.0/22",
	"103.22.200.0/22",
	"103.31.4.0/22",
}

// 静态优选地址库，按实测可用率分为三档:
// tier1 核心地址(成功率 >90%)，tier2 备用地址(60-90%)，tier3 DNS 服务地址

var tier1Pool = []string{
	// 104.16-23 段 - 北美核心段
	"104.16.0.0", "104.16.1.0", "104.16.2.0", "104.16.3.0", "104.16.4.0",
	"104.17.0.0", "104.17.1.0", "104.17.2.0", "104.17.3.0", "104.17.4.0",
	"104.18.0.0", "104.18.1.0", "104.18.2.0", "104.18.3.0", "104.18.4.0",
	"104.19.0.0", "104.19.1.0", "104.19.2.0", "104.19.3.0", "104.19.4.0",
	"104.20.0.0", "104.20.1.0", "104.20.2.0", "104.20.3.0", "104.20.4.0",
	"104.21.0.0", "104.21.1.0", "104.21.2.0", "104.21.3.0", "104.21.4.0",
	"104.22.0.0", "104.22.1.0", "104.22.2.0", "104.22.3.0", "104.22.4.0",
	"104.23.0.0", "104.23.1.0", "104.23.2.0", "104.23.3.0", "104.23.4.0",
	// 162.159 段 - 高稳定性段
	"162.159.0.0", "162.159.1.0", "162.159.2.0", "162.159.3.0", "162.159.4.0",
	"162.159.128.0", "162.159.129.0", "162.159.130.0", "162.159.192.0", "162.159.193.0",
	// 104.24-27 段 - 扩展核心段
	"104.24.0.0", "104.24.1.0", "104.24.2.0", "104.24.3.0", "104.24.4.0",
	"104.25.0.0", "104.25.1.0", "104.25.2.0", "104.25.3.0", "104.25.4.0",
	"104.26.0.0", "104.26.1.0", "104.26.2.0", "104.26.3.0", "104.26.4.0",
	"104.27.0.0", "104.27.1.0", "104.27.2.0", "104.27.3.0", "104.27.4.0",
}

var tier2Pool = []string{
	// 172.64-67 段 - 部分可用
	"172.64.0.0", "172.64.1.0", "172.64.32.0", "172.64.64.0",
	"172.65.0.0", "172.65.1.0", "172.65.32.0", "172.65.64.0",
	"172.66.0.0", "172.66.1.0", "172.66.32.0",
	"172.67.0.0", "172.67.1.0", "172.67.32.0",
	// 108.162 段 - CDN 加速段
	"108.162.192.0", "108.162.193.0", "108.162.194.0", "108.162.195.0",
	"108.162.196.0", "108.162.224.0", "108.162.225.0", "108.162.226.0",
	// 162.158 段 - 边缘节点
	"162.158.0.0", "162.158.1.0", "162.158.2.0", "162.158.64.0", "162.158.128.0",
}

var tier3Pool = []string{
	"1.1.1.1", "1.0.0.1", "1.1.1.2", "1.0.0.2", // Cloudflare 公共 DNS
	"188.114.96.0", "188.114.97.0", "188.114.98.0", "188.114.99.0",
}

// DeprecatedRanges 返回被排除的低质量地址段副本，供调用方校验使用
func DeprecatedRanges() []string {
	out := make([]string, len(deprecatedRanges))
	copy(out, deprecatedRanges)
	return out
}
