// Package console renders search progress and results for a terminal.
package console

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/OpenTraceLab/OpenTraceKNX/pkg/checkpoint"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyspace"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/search"
)

// Printer writes human readable reports.
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter returns a Printer for w. Colors follow color.NoColor.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, color: !color.NoColor}
}

// Plain disables colors.
func (p *Printer) Plain() *Printer {
	p.color = false
	return p
}

func (p *Printer) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if p.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func (p *Printer) field(name, format string, args ...any) {
	fmt.Fprintf(p.w, "  %-9s %s\n", name, fmt.Sprintf(format, args...))
}

// Discovery reports an accepted key. res is nil when the key was found before
// the stages ran.
func (p *Printer) Discovery(id checkpoint.Identity, d *search.Discovery, res *search.Result) {
	p.paint(color.FgGreen, color.Bold).Fprintf(p.w, "FOUND %s\n", d)
	p.field("device", "%s", id.Address)
	if len(id.Serial) > 0 {
		p.field("serial", "%s", checkpoint.FormatSerial(id.Serial))
	}
	if d.Stage == 0 {
		p.field("stage", "lock check")
	} else {
		p.field("stage", "%s", d.Stage)
		p.field("index", "%d", d.Index)
	}
	if res != nil {
		p.field("tried", "%s", triedLine(res.Tried, res.Elapsed))
	}
}

// Summary reports a run that ended without a discovery.
func (p *Printer) Summary(res *search.Result) {
	title := "No key found"
	if n := len(res.Stages); n > 0 {
		switch res.Stages[n-1].Status {
		case search.StageCancelled:
			title = "Search interrupted"
		case search.StageFailed:
			title = "Search failed"
		}
	}
	p.paint(color.FgYellow, color.Bold).Fprintln(p.w, title)

	for _, st := range res.Stages {
		line := fmt.Sprintf("%-10s %s tried", st.Status, humanize.Comma(int64(st.Tried)))
		if st.ResumeFrom > 0 {
			line += fmt.Sprintf(", resumed at %s", humanize.Comma(int64(st.ResumeFrom)))
		}
		p.field(st.Stage.String(), "%s", line)
	}
	p.field("total", "%s", triedLine(res.Tried, res.Elapsed))
}

// Benchmark reports a benchmark run.
func (p *Printer) Benchmark(key uint32, r search.BenchmarkResult) {
	p.paint(color.FgCyan, color.Bold).Fprintf(p.w, "Benchmark of key %s\n", keyspace.FormatKey(key))
	p.field("tries", "%s", humanize.Comma(int64(r.Tries)))
	p.field("elapsed", "%s", r.Elapsed.Round(time.Millisecond))
	p.field("per key", "%s", r.PerKey().Round(time.Microsecond))
	p.field("rate", "%s keys/s", humanize.FormatFloat("#,###.#", r.Rate()))
	p.field("retries", "%d", r.Retries)
	if r.Discovery != nil {
		p.paint(color.FgGreen).Fprintf(p.w, "benchmark key accepted: %s\n", r.Discovery)
	}
}

// Estimate prints how long the full space would take at rate keys per second
// for one worker of shard.
func (p *Printer) Estimate(rate float64, shard keyspace.Shard) {
	if rate <= 0 {
		return
	}
	keys := float64(keyspace.SpaceSize)
	if shard.Enabled() {
		keys /= float64(shard.MaxWorkers)
	}
	d := time.Duration(keys / rate * float64(time.Second))
	p.field("full space", "%s for %s", humanizeDuration(d), shard)
}

func triedLine(tried uint64, elapsed time.Duration) string {
	s := fmt.Sprintf("%s keys in %s", humanize.Comma(int64(tried)), elapsed.Round(time.Millisecond))
	if elapsed > 0 && tried > 0 {
		rate := float64(tried) / elapsed.Seconds()
		s += fmt.Sprintf(" (%s keys/s)", humanize.FormatFloat("#,###.#", rate))
	}
	return s
}

// humanizeDuration renders long durations in days.
func humanizeDuration(d time.Duration) string {
	const day = 24 * time.Hour
	if d < day {
		return d.Round(time.Second).String()
	}
	return fmt.Sprintf("%s days", humanize.FormatFloat("#,###.#", d.Hours()/24))
}
