package crawlers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitor 批次之间检查系统资源
// 浏览器长时间加载上千条评论时内存持续增长, 资源紧张时先冷却再继续
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 采样函数, 测试时替换
	sampleMemory func() (available uint64, total uint64, err error)
	sampleCPU    func() (float64, error)
}

// ResourceMonitorConfig 资源监控配置
type ResourceMonitorConfig struct {
	Enabled          bool
	MinAvailableMB   int64         // 可用内存低于该值视为紧张
	CPULoadThreshold float64       // CPU使用率阈值(%), >=100 时不检查CPU
	Cooldown         time.Duration // 资源紧张时的冷却时间
}

// MemoryStatus 内存状态信息
type MemoryStatus struct {
	TotalMemory     uint64  // 系统总内存(字节)
	AvailableMemory uint64  // 可用内存(字节)
	CPUUsage        float64 // CPU使用率(%)
	MemoryPressure  string  // 压力等级: normal / warning / critical
}

// NewResourceMonitor 创建资源监控器
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	return &ResourceMonitor{
		config: config,
		sampleMemory: func() (uint64, uint64, error) {
			vm, err := mem.VirtualMemory()
			if err != nil {
				return 0, 0, err
			}
			return vm.Available, vm.Total, nil
		},
		sampleCPU: func() (float64, error) {
			// 100毫秒采样, 所有核心的平均值
			percentages, err := cpu.Percent(100*time.Millisecond, false)
			if err != nil {
				return 0, err
			}
			if len(percentages) == 0 {
				return 0, fmt.Errorf("CPU使用率数据为空")
			}
			return percentages[0], nil
		},
	}
}

// Status 采样当前资源状态
func (rm *ResourceMonitor) Status() (MemoryStatus, error) {
	available, total, err := rm.sampleMemory()
	if err != nil {
		return MemoryStatus{}, fmt.Errorf("获取系统内存失败: %w", err)
	}
	status := MemoryStatus{
		TotalMemory:     total,
		AvailableMemory: available,
	}

	if rm.config.CPULoadThreshold > 0 && rm.config.CPULoadThreshold < 100 {
		usage, err := rm.sampleCPU()
		if err != nil {
			log.Warn().Err(err).Msg("获取CPU使用率失败")
		}
		status.CPUUsage = usage
	}

	availableMB := int64(available / (1024 * 1024))
	switch {
	case availableMB < rm.config.MinAvailableMB/2:
		status.MemoryPressure = "critical"
	case availableMB < rm.config.MinAvailableMB:
		status.MemoryPressure = "warning"
	default:
		status.MemoryPressure = "normal"
	}
	return status, nil
}

// Constrained 资源是否紧张, 返回原因
func (rm *ResourceMonitor) Constrained(status MemoryStatus) (bool, string) {
	if status.MemoryPressure != "normal" {
		return true, fmt.Sprintf("可用内存不足(当前%dMB)", status.AvailableMemory/(1024*1024))
	}
	if rm.config.CPULoadThreshold > 0 && rm.config.CPULoadThreshold < 100 && status.CPUUsage > rm.config.CPULoadThreshold {
		return true, fmt.Sprintf("CPU负载过高(当前%.1f%%)", status.CPUUsage)
	}
	return false, ""
}

// CheckAndCool 资源紧张时记录警告并冷却一次, 返回是否进行了冷却
// 采样失败不会阻止抓取
func (rm *ResourceMonitor) CheckAndCool(ctx context.Context) (bool, error) {
	if rm == nil || !rm.config.Enabled {
		return false, nil
	}

	status, err := rm.Status()
	if err != nil {
		log.Warn().Err(err).Msg("资源检查失败, 跳过")
		return false, nil
	}

	constrained, reason := rm.Constrained(status)
	if !constrained {
		return false, nil
	}

	event := log.Warn()
	if status.MemoryPressure == "critical" {
		event = log.Error()
	}
	event.Str("pressure", status.MemoryPressure).
		Dur("cooldown", rm.config.Cooldown).
		Msgf("%s, 暂停后继续", reason)

	if err := sleep(ctx, rm.config.Cooldown); err != nil {
		return true, err
	}
	return true, nil
}
