package sampler

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// CPUProbe reports system-wide CPU utilization percent.
type CPUProbe struct{}

func (p *CPUProbe) Kind() string { return "cpu" }

func (p *CPUProbe) Collect(_ time.Time) (map[string]float64, error) {
	// Interval 0 compares against the previous call, so the first reading
	// of an invocation reflects utilization since the supervisor started.
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return nil, fmt.Errorf("cpu probe: %w", err)
	}
	if len(percents) == 0 {
		return nil, fmt.Errorf("cpu probe: no data")
	}
	return map[string]float64{"cpu": percents[0]}, nil
}

// MemoryProbe reports virtual memory utilization percent.
type MemoryProbe struct{}

func (p *MemoryProbe) Kind() string { return "memory" }

func (p *MemoryProbe) Collect(_ time.Time) (map[string]float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("memory probe: %w", err)
	}
	return map[string]float64{"memory": vm.UsedPercent}, nil
}

// DiskProbe reports used-space percent for each monitored mount point. The
// mount set is fixed at construction: all physical partitions plus a few
// volatile locations that tend to fill up during builds.
type DiskProbe struct {
	mounts []string
}

func NewDiskProbe() *DiskProbe {
	p := &DiskProbe{}
	if parts, err := disk.Partitions(false); err == nil {
		for _, part := range parts {
			p.mounts = append(p.mounts, part.Mountpoint)
		}
	}
	for _, location := range []string{
		"/tmp",
		"/dev/shm",
		fmt.Sprintf("/var/run/user/%d", os.Getuid()),
	} {
		if contains(p.mounts, location) {
			continue
		}
		if _, err := os.Stat(location); err == nil {
			p.mounts = append(p.mounts, location)
		}
	}
	return p
}

func (p *DiskProbe) Kind() string { return "disk" }

func (p *DiskProbe) Collect(_ time.Time) (map[string]float64, error) {
	if len(p.mounts) == 0 {
		return nil, fmt.Errorf("disk probe: no mount points")
	}
	values := make(map[string]float64, len(p.mounts))
	var lastErr error
	for _, m := range p.mounts {
		usage, err := disk.Usage(m)
		if err != nil {
			// A single unreadable mount shouldn't blank the others.
			lastErr = err
			continue
		}
		values[m] = usage.UsedPercent
	}
	if len(values) == 0 && lastErr != nil {
		return nil, fmt.Errorf("disk probe: %w", lastErr)
	}
	return values, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
