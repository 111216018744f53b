package generator

import (
	"encoding/binary"
	"log"
	"math/rand"
	"net"
	"strings"
	"time"

	"CF_IP_SpeedTest_Go/internal/locations"
	"CF_IP_SpeedTest_Go/pkg/model"
)

const (
	// CloudflareASN Cloudflare 官方自治系统号
	CloudflareASN = 13335

	// subnetSize /24 子网标准大小
	subnetSize = 256

	// premiumPoolThreshold 请求数量不超过该值时直接使用静态优选地址库
	premiumPoolThreshold = 30
)

// positionOffsets 每个子网内的优质偏移位置
// [0,1,2,3,4] 为起始段，[32,64,128] 为特定段
var positionOffsets = []int64{0, 1, 2, 3, 4, 32, 64, 128}

// Generator 根据 Cloudflare 地址段生成候选测试端点
type Generator struct {
	Locations     *locations.LocationDB // 可为 nil，此时端点只带通用元数据
	QualityFilter bool                  // 是否启用 IP 段质量分级
	RandomSelect  bool                  // 是否在段内随机抽取

	rng *rand.Rand
}

// New 创建候选端点生成器，默认启用质量分级
func New(db *locations.LocationDB) *Generator {
	return &Generator{
		Locations:     db,
		QualityFilter: true,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func ipToUint32(ip net.IP) uint32 {
	return binary.BigEndian.Uint32(ip.To4())
}

func uint32ToIP(v uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, v)
	return ip
}

// GenerateFromCIDR 从单个 CIDR 网段生成 IP 地址列表
//
// 选择策略:
//  1. 大型网段(可用地址 > count*256) - 跨子网分散选择，提高地理分布
//  2. 小型网段 - 从网络地址+1 开始顺序选择
//  3. 随机模式 - 在可用地址中无放回均匀抽样
//
// 网络地址和广播地址不会出现在结果中，优化模式下同时排除 .255 结尾的地址。
// 网段解析失败返回空列表，不影响调用方处理其他网段。
func (g *Generator) GenerateFromCIDR(cidr string, count int, useRandom, optimize bool) []string {
	if count <= 0 {
		return nil
	}

	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil || ipNet.IP.To4() == nil {
		log.Printf("从 CIDR 段 %s 生成 IP 失败: %v", cidr, err)
		return nil
	}

	network := ipToUint32(ipNet.IP)
	mask := ipToUint32(net.IP(ipNet.Mask))
	broadcast := network | ^mask

	// 排除网络地址和广播地址
	usable := int64(broadcast) - int64(network) + 1 - 2
	if usable <= 0 {
		return nil
	}

	switch {
	case optimize && !useRandom:
		if usable > int64(count)*subnetSize {
			return g.pickAcrossSubnets(network, usable, count)
		}
		return g.pickSequential(network, usable, count, true)
	case useRandom:
		return g.pickRandom(network, usable, count)
	default:
		return g.pickSequential(network, usable, count, false)
	}
}

// pickAcrossSubnets 大型网段策略: 等间隔采样多个 /24 子网，
// 在每个子网内按固定偏移取地址
func (g *Generator) pickAcrossSubnets(network uint32, usable int64, count int) []string {
	// 需要覆盖的子网数量(至少 10 个)
	targetSubnets := max(10, count/5)
	if targetSubnets > count {
		targetSubnets = count
	}

	// 子网间隔步长
	interval := usable / (int64(targetSubnets) * subnetSize)
	if interval < 1 {
		interval = 1
	}

	seen := make(map[string]bool, count)
	result := make([]string, 0, count)
	for subnetIndex := 0; subnetIndex < targetSubnets; subnetIndex++ {
		baseOffset := int64(subnetIndex) * interval * subnetSize
		for _, positionOffset := range positionOffsets {
			if len(result) >= count {
				break
			}
			finalOffset := baseOffset + positionOffset
			if finalOffset < 0 || finalOffset >= usable {
				continue
			}
			ip := uint32ToIP(network + uint32(finalOffset) + 1).String()
			// 过滤广播类地址和重复项
			if strings.HasSuffix(ip, ".255") || seen[ip] {
				continue
			}
			seen[ip] = true
			result = append(result, ip)
		}
		if len(result) >= count {
			break
		}
	}
	return result
}

// pickSequential 小型网段策略: 从网络地址+1 开始顺序收集，
// skipBroadcast 为 true 时跳过 .255 结尾地址并最多检查 2*count 个候选
func (g *Generator) pickSequential(network uint32, usable int64, count int, skipBroadcast bool) []string {
	limit := usable
	if skipBroadcast && int64(count)*2 < limit {
		limit = int64(count) * 2
	} else if !skipBroadcast && int64(count) < limit {
		limit = int64(count)
	}

	result := make([]string, 0, count)
	for offset := int64(0); offset < limit; offset++ {
		ip := uint32ToIP(network + uint32(offset) + 1).String()
		if skipBroadcast && strings.HasSuffix(ip, ".255") {
			continue
		}
		result = append(result, ip)
		if len(result) >= count {
			break
		}
	}
	return result
}

// pickRandom 在可用地址中无放回均匀抽样
func (g *Generator) pickRandom(network uint32, usable int64, count int) []string {
	if usable <= int64(count) {
		result := make([]string, 0, usable)
		for offset := int64(0); offset < usable; offset++ {
			result = append(result, uint32ToIP(network+uint32(offset)+1).String())
		}
		return result
	}

	chosen := make(map[int64]bool, count)
	result := make([]string, 0, count)
	for len(result) < count {
		offset := g.rng.Int63n(usable)
		if chosen[offset] {
			continue
		}
		chosen[offset] = true
		result = append(result, uint32ToIP(network+uint32(offset)+1).String())
	}
	return result
}

// QualityOptimizedIPs 获取经过质量分级优化的 IP 地址集合
//
// 启用质量过滤时: 先从每个优质段取 3 倍配额；若累计数量仍不足
// 10 倍配额，再从备用段补充；低质量段永不参与。
// 禁用过滤时: 从所有官方段按配额随机抽取。
func (g *Generator) QualityOptimizedIPs(ipsPerRange int, enableQualityFilter bool) []string {
	if ipsPerRange <= 0 {
		ipsPerRange = 1
	}

	var allIPs []string
	if enableQualityFilter {
		for _, cidr := range premiumRanges {
			allIPs = append(allIPs, g.GenerateFromCIDR(cidr, ipsPerRange*3, g.RandomSelect, true)...)
		}
		if len(allIPs) < ipsPerRange*10 {
			for _, cidr := range fallbackRanges {
				allIPs = append(allIPs, g.GenerateFromCIDR(cidr, ipsPerRange, g.RandomSelect, true)...)
			}
		}
	} else {
		for _, cidr := range OfficialIPv4Ranges {
			allIPs = append(allIPs, g.GenerateFromCIDR(cidr, ipsPerRange, true, true)...)
		}
	}

	log.Printf("已从分级地址段生成 %d 个候选 IP (每段配额 %d)", len(allIPs), ipsPerRange)
	return allIPs
}

// CreateEndpointList 从官方地址段生成指定数量的测试端点
// location 参数为 IATA 机场代码，为空或未收录时使用通用全球元数据
func (g *Generator) CreateEndpointList(port, count int, locationCode string) []model.Endpoint {
	if count <= 0 {
		count = 100
	}

	ipsPerRange := count / len(OfficialIPv4Ranges)
	if ipsPerRange < 1 {
		ipsPerRange = 1
	}
	pool := g.QualityOptimizedIPs(ipsPerRange, g.QualityFilter)
	if len(pool) > count {
		pool = pool[:count]
	}

	endpoints := g.buildEndpoints(pool, port, locationCode)
	log.Printf("创建了 %d 个 CDN 端点 (port=%d, tls=%v)", len(endpoints), port, model.IsSecurePort(port))
	return endpoints
}

// VerifiedPremiumEndpoints 返回静态优选地址库中的端点
//
// 三档地址按地理位置以不同比例混合: 亚太与北美西海岸请求偏向核心档，
// 无位置提示时返回全部。适用于小规模请求，不经过 CIDR 采样。
func (g *Generator) VerifiedPremiumEndpoints(port int, locationCode string) []model.Endpoint {
	locationCode = strings.ToUpper(locationCode)
	var selected []string
	switch {
	case locationCode == "HKG":
		selected = blendPools(60, 15, 5)
	case locationCode == "LAX" || locationCode == "SFO" || locationCode == "SJC" || locationCode == "SEA":
		selected = blendPools(50, 20, 10)
	case locationCode == "NRT" || locationCode == "ICN" || locationCode == "SIN" || locationCode == "TPE":
		selected = blendPools(45, 25, 10)
	default:
		selected = blendPools(len(tier1Pool), len(tier2Pool), len(tier3Pool))
	}

	endpoints := g.buildEndpoints(selected, port, locationCode)
	log.Printf("返回 %d 个静态优选端点", len(endpoints))
	return endpoints
}

// Endpoints 根据请求数量选择生成路径:
// 小数量直接使用静态优选地址库，大数量从完整地址段生成
func (g *Generator) Endpoints(port, count int, locationCode string) []model.Endpoint {
	if count <= premiumPoolThreshold {
		return g.VerifiedPremiumEndpoints(port, locationCode)
	}
	return g.CreateEndpointList(port, count, locationCode)
}

func blendPools(n1, n2, n3 int) []string {
	out := make([]string, 0, n1+n2+n3)
	out = append(out, tier1Pool[:min(n1, len(tier1Pool))]...)
	out = append(out, tier2Pool[:min(n2, len(tier2Pool))]...)
	out = append(out, tier3Pool[:min(n3, len(tier3Pool))]...)
	return out
}

// buildEndpoints 构造端点对象并按 (ip, port) 去重
func (g *Generator) buildEndpoints(ips []string, port int, locationCode string) []model.Endpoint {
	requiresTLS := model.IsSecurePort(port)

	var loc locations.Location
	var hasLoc bool
	if g.Locations != nil && locationCode != "" {
		loc, hasLoc = g.Locations.Get(locationCode)
	}

	seen := make(map[string]bool, len(ips))
	endpoints := make([]model.Endpoint, 0, len(ips))
	for _, ip := range ips {
		ep := model.Endpoint{
			IP:   ip,
			Port: port,
			TLS:  requiresTLS,
			ASN:  CloudflareASN,
		}
		if seen[ep.Key()] {
			continue
		}
		seen[ep.Key()] = true

		if hasLoc {
			ep.Datacenter = strings.ToUpper(locationCode)
			ep.IATA = strings.ToUpper(locationCode)
			ep.Region = loc.Region
			ep.Country = loc.Country
			ep.City = loc.City
		} else {
			// 无位置提示时的默认全球配置
			ep.Datacenter = "Cloudflare"
			ep.Region = "Global Anycast"
			ep.Country = "US"
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints
}
