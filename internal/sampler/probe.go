// Package sampler collects resource-usage statistics at a fixed interval
// while a command runs in the shell.
package sampler

import (
	"fmt"
	"time"
)

// Sample is one (timestamp, value) data point. Timestamps are milliseconds
// since the Unix epoch.
type Sample struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// Series maps a series name ("cpu", "memory", or a disk mount point) to its
// ordered samples.
type Series map[string][]Sample

// Probe is one resource-usage metric that can be polled repeatedly. A single
// probe may feed several series (the disk probe reports one per mount point).
type Probe interface {
	// Kind is the metric name used to select the probe ("cpu", "memory",
	// "disk").
	Kind() string
	// Collect takes an instantaneous reading for every series this probe
	// owns.
	Collect(now time.Time) (map[string]float64, error)
}

// Probes builds the set of probes for the requested metric names.
func Probes(measure []string) ([]Probe, error) {
	var probes []Probe
	for _, name := range measure {
		switch name {
		case "cpu":
			probes = append(probes, &CPUProbe{})
		case "memory":
			probes = append(probes, &MemoryProbe{})
		case "disk":
			probes = append(probes, NewDiskProbe())
		default:
			return nil, fmt.Errorf("unknown metric %q (supported: cpu, memory, disk)", name)
		}
	}
	return probes, nil
}
