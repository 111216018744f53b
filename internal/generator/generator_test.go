package generator

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CF_IP_SpeedTest_Go/internal/locations"
)

func testLocationDB(t *testing.T) *locations.LocationDB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "locations.json")
	data := `[
		{"iata": "LAX", "city": "Los Angeles", "region": "North America", "cca2": "US"},
		{"iata": "HKG", "city": "Hong Kong", "region": "Asia Pacific", "cca2": "HK"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	db, err := locations.LoadFromFile(path)
	require.NoError(t, err)
	return db
}

func assertValidHostAddrs(t *testing.T, cidr string, ips []string) {
	t.Helper()
	_, ipNet, err := net.ParseCIDR(cidr)
	require.NoError(t, err)

	network := ipToUint32(ipNet.IP)
	broadcast := network | ^ipToUint32(net.IP(ipNet.Mask))

	for _, ip := range ips {
		parsed := net.ParseIP(ip)
		require.NotNil(t, parsed, "无法解析地址 %s", ip)
		v := ipToUint32(parsed)
		assert.True(t, ipNet.Contains(parsed), "%s 不在网段 %s 内", ip, cidr)
		assert.NotEqual(t, network, v, "返回了网络地址 %s", ip)
		assert.NotEqual(t, broadcast, v, "返回了广播地址 %s", ip)
	}
}

func TestGenerateFromCIDRLargeBlock(t *testing.T) {
	g := New(nil)
	cidr := "104.16.0.0/13"

	ips := g.GenerateFromCIDR(cidr, 50, false, true)
	require.Len(t, ips, 50)
	assertValidHostAddrs(t, cidr, ips)

	seen := make(map[string]bool)
	windows := make(map[uint32]bool)
	for _, ip := range ips {
		assert.False(t, seen[ip], "出现重复地址 %s", ip)
		seen[ip] = true
		assert.False(t, strings.HasSuffix(ip, ".255"), "出现 .255 地址 %s", ip)
		windows[ipToUint32(net.ParseIP(ip))/256] = true
	}
	// 每个子网最多贡献 8 个偏移位置，50 个地址至少横跨 7 个 /24 窗口
	assert.GreaterOrEqual(t, len(windows), 7)
}

func TestGenerateFromCIDRLargeBlockSpansSubnets(t *testing.T) {
	g := New(nil)

	// 80 个地址正好耗尽 10 个子网的全部偏移位置
	ips := g.GenerateFromCIDR("104.16.0.0/13", 80, false, true)
	require.Len(t, ips, 80)

	windows := make(map[uint32]bool)
	for _, ip := range ips {
		windows[ipToUint32(net.ParseIP(ip))/256] = true
	}
	assert.GreaterOrEqual(t, len(windows), 10)
}

func TestGenerateFromCIDRSmallBlock(t *testing.T) {
	g := New(nil)

	ips := g.GenerateFromCIDR("192.168.1.0/24", 10, false, true)
	require.Len(t, ips, 10)
	assert.Equal(t, "192.168.1.1", ips[0])
	assert.Equal(t, "192.168.1.10", ips[9])
	assertValidHostAddrs(t, "192.168.1.0/24", ips)
}

func TestGenerateFromCIDRSkipsBroadcastOctet(t *testing.T) {
	g := New(nil)

	// /23 顺序遍历会经过 10.0.0.255，必须跳过
	ips := g.GenerateFromCIDR("10.0.0.0/23", 300, false, true)
	assert.NotContains(t, ips, "10.0.0.255")
	assert.Contains(t, ips, "10.0.1.0")
	assertValidHostAddrs(t, "10.0.0.0/23", ips)
}

func TestGenerateFromCIDRAtMostCount(t *testing.T) {
	g := New(nil)

	// /29 只有 6 个可用地址
	ips := g.GenerateFromCIDR("172.16.0.0/29", 100, false, true)
	assert.LessOrEqual(t, len(ips), 6)
	assertValidHostAddrs(t, "172.16.0.0/29", ips)
}

func TestGenerateFromCIDRRandom(t *testing.T) {
	g := New(nil)

	ips := g.GenerateFromCIDR("192.168.1.0/24", 20, true, false)
	require.Len(t, ips, 20)
	assertValidHostAddrs(t, "192.168.1.0/24", ips)

	seen := make(map[string]bool)
	for _, ip := range ips {
		assert.False(t, seen[ip], "随机抽样出现重复地址 %s", ip)
		seen[ip] = true
	}

	// 可用地址不足时返回全部
	all := g.GenerateFromCIDR("172.16.0.0/29", 100, true, false)
	assert.Len(t, all, 6)
}

func TestGenerateFromCIDRSequential(t *testing.T) {
	g := New(nil)

	ips := g.GenerateFromCIDR("192.168.1.0/24", 5, false, false)
	assert.Equal(t, []string{"192.168.1.1", "192.168.1.2", "192.168.1.3", "192.168.1.4", "192.168.1.5"}, ips)
}

func TestGenerateFromCIDRInvalidSpec(t *testing.T) {
	g := New(nil)

	assert.Empty(t, g.GenerateFromCIDR("not-a-cidr", 10, false, true))
	assert.Empty(t, g.GenerateFromCIDR("300.0.0.0/8", 10, false, true))
	assert.Empty(t, g.GenerateFromCIDR("10.0.0.1/32", 10, false, true))
}

func TestQualityOptimizedIPsExcludesDeprecated(t *testing.T) {
	g := New(nil)

	var deprecatedNets []*net.IPNet
	for _, cidr := range DeprecatedRanges() {
		_, ipNet, err := net.ParseCIDR(cidr)
		require.NoError(t, err)
		deprecatedNets = append(deprecatedNets, ipNet)
	}

	ips := g.QualityOptimizedIPs(5, true)
	require.NotEmpty(t, ips)
	for _, ip := range ips {
		parsed := net.ParseIP(ip)
		for _, ipNet := range deprecatedNets {
			assert.False(t, ipNet.Contains(parsed), "%s 落在已禁用网段 %s 内", ip, ipNet)
		}
	}
}

func TestQualityOptimizedIPsUnfiltered(t *testing.T) {
	g := New(nil)

	ips := g.QualityOptimizedIPs(2, false)
	// 无过滤模式从全部 15 个官方段各取配额
	assert.Len(t, ips, 2*len(OfficialIPv4Ranges))
}

func TestCreateEndpointListMetadata(t *testing.T) {
	g := New(testLocationDB(t))

	endpoints := g.CreateEndpointList(443, 100, "LAX")
	require.NotEmpty(t, endpoints)

	seen := make(map[string]bool)
	for _, ep := range endpoints {
		assert.False(t, seen[ep.Key()], "端点 %s 重复", ep.Key())
		seen[ep.Key()] = true
		assert.True(t, ep.TLS)
		assert.Equal(t, "LAX", ep.IATA)
		assert.Equal(t, "North America", ep.Region)
		assert.Equal(t, "US", ep.Country)
		assert.Equal(t, CloudflareASN, ep.ASN)
	}
}

func TestCreateEndpointListGenericMetadata(t *testing.T) {
	g := New(nil)

	endpoints := g.CreateEndpointList(8080, 50, "")
	require.NotEmpty(t, endpoints)
	for _, ep := range endpoints {
		assert.False(t, ep.TLS, "8080 不是 TLS 端口")
		assert.Equal(t, "Cloudflare", ep.Datacenter)
		assert.Equal(t, "Global Anycast", ep.Region)
	}
}

func TestVerifiedPremiumEndpointsBlend(t *testing.T) {
	g := New(testLocationDB(t))

	hk := g.VerifiedPremiumEndpoints(443, "HKG")
	assert.Len(t, hk, 60+15+5)
	assert.Equal(t, "Hong Kong", hk[0].City)

	west := g.VerifiedPremiumEndpoints(443, "LAX")
	assert.Len(t, west, 50+20+10)

	all := g.VerifiedPremiumEndpoints(443, "")
	assert.Greater(t, len(all), len(hk))
}

func TestEndpointsPathSelection(t *testing.T) {
	g := New(nil)

	// 小数量走静态优选地址库
	small := g.Endpoints(443, 10, "")
	assert.Greater(t, len(small), 30)

	// 大数量从地址段生成，数量受 count 约束
	large := g.Endpoints(443, 60, "")
	assert.LessOrEqual(t, len(large), 60)
	assert.NotEmpty(t, large)
}
