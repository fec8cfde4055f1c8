package collect

import (
	"context"
	"net"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostProtocol 本机 CPU / 负载 / 内存 / 主机信息。
// 参数 fields 为逗号分隔的字段名，用于只返回部分字段
type HostProtocol struct{}

func (HostProtocol) Name() string { return "host" }

func (HostProtocol) Collect(ctx context.Context, job *Job) (map[string]string, error) {
	out := make(map[string]string, 16)

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	if len(percents) > 0 {
		out["cpu_usage"] = formatFloat(percents[0])
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		out["cpu_cores"] = strconv.Itoa(n)
	}

	// load 在部分平台不可用，忽略错误
	if avg, err := load.AvgWithContext(ctx); err == nil {
		out["load1"] = formatFloat(avg.Load1)
		out["load5"] = formatFloat(avg.Load5)
		out["load15"] = formatFloat(avg.Load15)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out["mem_total"] = strconv.FormatUint(vm.Total, 10)
	out["mem_used"] = strconv.FormatUint(vm.Used, 10)
	out["mem_usage"] = formatFloat(vm.UsedPercent)

	if info, err := host.InfoWithContext(ctx); err == nil {
		out["hostname"] = info.Hostname
		out["os"] = info.OS
		out["platform"] = info.Platform
		out["uptime"] = strconv.FormatUint(info.Uptime, 10)
	}

	return filterFields(out, job.Params["fields"]), nil
}

func filterFields(all map[string]string, fields string) map[string]string {
	if strings.TrimSpace(fields) == "" {
		return all
	}
	picked := make(map[string]string)
	for _, name := range strings.Split(fields, ",") {
		name = strings.TrimSpace(name)
		if v, ok := all[name]; ok {
			picked[name] = v
		}
	}
	return picked
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

// LocalInfo 组装 GO_ONLINE 上报的采集器信息
func LocalInfo(name, version string) *CollectorInfo {
	info := &CollectorInfo{Name: name, Version: version, OS: runtime.GOOS, IP: localIP()}
	if h, err := host.Info(); err == nil {
		info.Hostname = h.Hostname
		info.Platform = h.Platform
	}
	return info
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && !ipn.IP.IsLoopback() && ipn.IP.To4() != nil {
			return ipn.IP.String()
		}
	}
	return ""
}
