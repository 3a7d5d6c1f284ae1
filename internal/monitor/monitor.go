// Package monitor implements the resource-monitoring capability (spec.md
// §9, §11.2): the Go counterpart of the Python original's HAS_PSUTIL
// optional-import guard in original_source/bin/parallelr.py. A Capability is
// handed to the Process Runner; when sampling isn't possible, Sample returns
// ok=false and the runner leaves peak_memory_mb/peak_cpu_percent absent.
package monitor

import (
	"github.com/shirou/gopsutil/v4/process"
)

// Capability samples resident memory (MiB) and CPU percent for a PID and its
// descendants. ok is false whenever no sample could be taken.
type Capability interface {
	Sample(pid int32) (memMB, cpuPercent float64, ok bool)
}

// Disabled is the Capability used when monitor_enabled is false; it never
// produces a sample.
type Disabled struct{}

func (Disabled) Sample(int32) (float64, float64, bool) { return 0, 0, false }

// GopsutilCapability samples via github.com/shirou/gopsutil/v4/process,
// walking the process and all of its descendants so a multi-process task tree is
// accounted for as one peak.
type GopsutilCapability struct{}

func New(enabled bool) Capability {
	if !enabled {
		return Disabled{}
	}
	return GopsutilCapability{}
}

func (GopsutilCapability) Sample(pid int32) (memMB, cpuPercent float64, ok bool) {
	root, err := process.NewProcess(pid)
	if err != nil {
		return 0, 0, false
	}

	procs := []*process.Process{root}
	for i := 0; i < len(procs); i++ {
		if children, err := procs[i].Children(); err == nil {
			procs = append(procs, children...)
		}
	}

	var totalMemMB, totalCPU float64
	sampled := false
	for _, p := range procs {
		if mi, err := p.MemoryInfo(); err == nil && mi != nil {
			totalMemMB += float64(mi.RSS) / (1024 * 1024)
			sampled = true
		}
		if cpu, err := p.CPUPercent(); err == nil {
			totalCPU += cpu
			sampled = true
		}
	}
	if !sampled {
		return 0, 0, false
	}
	return totalMemMB, totalCPU, true
}
