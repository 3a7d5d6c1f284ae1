package resultsink

import (
	"fmt"
	"io"
	"math"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/parallelr/parallelr/internal/taskresult"
)

// Stats accumulates the terminal summary's counters (spec.md §4.7/§7):
// counts by status, duration min/avg/max, and memory/CPU min/avg/max.
type Stats struct {
	Total    int
	ByStatus map[taskresult.Status]int

	durationSum, durationMin, durationMax float64
	memSum, memMin, memMax                float64
	memSamples                            int
	cpuSum, cpuMin, cpuMax                float64
	cpuSamples                            int
}

func (s *Stats) observe(r taskresult.Result) {
	if s.ByStatus == nil {
		s.ByStatus = make(map[taskresult.Status]int)
	}
	s.Total++
	s.ByStatus[r.Status]++

	d := r.Duration().Seconds()
	if s.Total == 1 {
		s.durationMin, s.durationMax = d, d
	} else {
		s.durationMin = math.Min(s.durationMin, d)
		s.durationMax = math.Max(s.durationMax, d)
	}
	s.durationSum += d

	if r.PeakMemoryMB != nil {
		s.memSamples++
		if s.memSamples == 1 {
			s.memMin, s.memMax = *r.PeakMemoryMB, *r.PeakMemoryMB
		} else {
			s.memMin = math.Min(s.memMin, *r.PeakMemoryMB)
			s.memMax = math.Max(s.memMax, *r.PeakMemoryMB)
		}
		s.memSum += *r.PeakMemoryMB
	}
	if r.PeakCPUPercent != nil {
		s.cpuSamples++
		if s.cpuSamples == 1 {
			s.cpuMin, s.cpuMax = *r.PeakCPUPercent, *r.PeakCPUPercent
		} else {
			s.cpuMin = math.Min(s.cpuMin, *r.PeakCPUPercent)
			s.cpuMax = math.Max(s.cpuMax, *r.PeakCPUPercent)
		}
		s.cpuSum += *r.PeakCPUPercent
	}
}

func (s Stats) durationAvg() float64 {
	if s.Total == 0 {
		return 0
	}
	return s.durationSum / float64(s.Total)
}

func (s Stats) memAvg() float64 {
	if s.memSamples == 0 {
		return 0
	}
	return s.memSum / float64(s.memSamples)
}

func (s Stats) cpuAvg() float64 {
	if s.cpuSamples == 0 {
		return 0
	}
	return s.cpuSum / float64(s.cpuSamples)
}

var statusColor = map[taskresult.Status]*color.Color{
	taskresult.StatusSuccess:     color.New(color.FgGreen),
	taskresult.StatusFailed:      color.New(color.FgRed),
	taskresult.StatusLaunchError: color.New(color.FgRed),
	taskresult.StatusTimeout:     color.New(color.FgYellow),
	taskresult.StatusCancelled:   color.New(color.FgHiBlack),
}

// WriteSummary renders the terminal summary (spec.md §7): counts by status,
// duration statistics, and memory/CPU statistics, as aligned tables with a
// colorized status legend. Grounded on mensylisir-kubexm's
// cmd/kubexm/cmd/node/list.go table-rendering style.
func WriteSummary(w io.Writer, s Stats) {
	fmt.Fprintf(w, "\nSession summary: %d task(s)\n", s.Total)

	statusTable := tablewriter.NewWriter(w)
	statusTable.SetHeader([]string{"Status", "Count"})
	for _, status := range []taskresult.Status{
		taskresult.StatusSuccess, taskresult.StatusFailed, taskresult.StatusTimeout,
		taskresult.StatusCancelled, taskresult.StatusLaunchError,
	} {
		count := s.ByStatus[status]
		if count == 0 {
			continue
		}
		label := string(status)
		if c, ok := statusColor[status]; ok {
			label = c.Sprint(label)
		}
		statusTable.Append([]string{label, fmt.Sprintf("%d", count)})
	}
	statusTable.Render()

	timingTable := tablewriter.NewWriter(w)
	timingTable.SetHeader([]string{"Metric", "Min", "Avg", "Max"})
	timingTable.Append([]string{"Duration (s)", f2(s.durationMin), f2(s.durationAvg()), f2(s.durationMax)})
	if s.memSamples > 0 {
		timingTable.Append([]string{"Memory (MB)", f2(s.memMin), f2(s.memAvg()), f2(s.memMax)})
	}
	if s.cpuSamples > 0 {
		timingTable.Append([]string{"CPU (%)", f2(s.cpuMin), f2(s.cpuAvg()), f2(s.cpuMax)})
	}
	timingTable.Render()
}

func f2(v float64) string { return fmt.Sprintf("%.2f", v) }
