package procrunner

import (
	"context"
	"sync"
	"time"

	"github.com/parallelr/parallelr/internal/monitor"
)

// peakSampler records the maximum memory and CPU percent observed for a
// process across its lifetime, sampling at the configured poll cadence
// (spec.md §4.3 step 5). ok stays false until at least one sample succeeds,
// so the Process Runner can leave peak_memory_mb/peak_cpu_percent absent.
type peakSampler struct {
	cap      monitor.Capability
	pid      int32
	interval time.Duration

	mu      sync.Mutex
	hasData bool
	memMB   float64
	cpu     float64
}

func newPeakSampler(cap monitor.Capability, pid int, interval time.Duration) *peakSampler {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &peakSampler{cap: cap, pid: int32(pid), interval: interval}
}

func (p *peakSampler) run(ctx context.Context) {
	p.sampleOnce()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sampleOnce()
		}
	}
}

func (p *peakSampler) sampleOnce() {
	mem, cpu, ok := p.cap.Sample(p.pid)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hasData = true
	if mem > p.memMB {
		p.memMB = mem
	}
	if cpu > p.cpu {
		p.cpu = cpu
	}
}

func (p *peakSampler) peakValues() (memMB, cpuPercent float64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.memMB, p.cpu, p.hasData
}
