// Package report collects per-instantiation verdicts and renders the run
// summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"ruleveri/internal/solver"
)

// Record is the outcome of one type instantiation of one expansion.
type Record struct {
	Expansion  int            `json:"expansion"`
	Rule       string         `json:"rule"`
	Chained    []string       `json:"chained,omitempty"`
	Instance   int            `json:"instance"`
	Signatures string         `json:"signatures"`
	Verdict    solver.Verdict `json:"verdict"`
	Reason     string         `json:"reason,omitempty"`
	// Model is the printed counterexample, one line per state value or
	// call.
	Model    []string      `json:"model,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (r *Record) Name() string {
	if len(r.Chained) == 0 {
		return r.Rule
	}
	return r.Rule + " via " + strings.Join(r.Chained, ", ")
}

var (
	failStyle    = color.New(color.FgRed, color.Bold)
	toolStyle    = color.New(color.FgYellow, color.Bold)
	okStyle      = color.New(color.FgGreen, color.Bold)
	ruleStyle    = color.New(color.FgCyan, color.Bold)
	detailStyle  = color.New(color.FgWhite)
	warningStyle = color.New(color.FgHiYellow)
)

func style(v solver.Verdict) *color.Color {
	switch {
	case v.Failed():
		return failStyle
	case v.Inconclusive():
		return toolStyle
	case v == solver.Valid:
		return okStyle
	}
	return detailStyle
}

// Write renders one record for the terminal.
func (r *Record) Write(w io.Writer) {
	st := style(r.Verdict)
	st.Fprintf(w, "%-14s", r.Verdict)
	ruleStyle.Fprintf(w, " #%05d.%03d %s", r.Expansion, r.Instance, r.Name())
	detailStyle.Fprintf(w, " [%s]\n", r.Signatures)
	if r.Reason != "" {
		detailStyle.Fprintf(w, "    %s\n", r.Reason)
	}
	for _, line := range r.Model {
		detailStyle.Fprintf(w, "    %s\n", line)
	}
	for _, warn := range r.Warnings {
		warningStyle.Fprintf(w, "    warning: %s\n", warn)
	}
}

// Expansion is the persisted report of one expansion.
type Expansion struct {
	ID        int       `json:"id"`
	Rule      string    `json:"rule"`
	Chained   []string  `json:"chained,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
	Error     string    `json:"error,omitempty"`
	Instances []*Record `json:"instances"`
}

func (e *Expansion) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(e), "encode expansion report")
}

type key struct{ expansion, instance int }

// Report is safe for concurrent use; records come back ordered by
// expansion and instance regardless of insertion order.
type Report struct {
	mu      sync.Mutex
	records map[key]*Record
	Started time.Time
	Elapsed time.Duration
}

func New() *Report {
	return &Report{records: map[key]*Record{}, Started: time.Now()}
}

func (rep *Report) Add(r *Record) {
	rep.mu.Lock()
	defer rep.mu.Unlock()
	rep.records[key{r.Expansion, r.Instance}] = r
}

func (rep *Report) Records() []*Record {
	rep.mu.Lock()
	defer rep.mu.Unlock()
	out := make([]*Record, 0, len(rep.records))
	for _, r := range rep.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Expansion != out[j].Expansion {
			return out[i].Expansion < out[j].Expansion
		}
		return out[i].Instance < out[j].Instance
	})
	return out
}

func (rep *Report) Counts() map[solver.Verdict]int {
	counts := map[solver.Verdict]int{}
	for _, r := range rep.Records() {
		counts[r.Verdict]++
	}
	return counts
}

// Failed reports whether any instantiation has a counterexample.
func (rep *Report) Failed() bool {
	return rep.Counts()[solver.Counterexample] > 0
}

// Summary writes every record that needs attention followed by the
// aggregate counts, proof failures first and tooling failures second.
func (rep *Report) Summary(w io.Writer, verbose bool) {
	records := rep.Records()
	var failures, tooling []*Record
	for _, r := range records {
		switch {
		case r.Verdict.Failed():
			failures = append(failures, r)
		case r.Verdict.Inconclusive():
			tooling = append(tooling, r)
		case verbose:
			r.Write(w)
		}
	}
	if len(failures) > 0 {
		failStyle.Fprintf(w, "\nproof failures: %d\n", len(failures))
		for _, r := range failures {
			r.Write(w)
		}
	}
	if len(tooling) > 0 {
		toolStyle.Fprintf(w, "\ntooling failures: %d\n", len(tooling))
		for _, r := range tooling {
			r.Write(w)
		}
	}

	counts := rep.Counts()
	fmt.Fprintf(w, "\n%d instantiations", len(records))
	if rep.Elapsed > 0 {
		fmt.Fprintf(w, " in %s", rep.Elapsed.Round(time.Millisecond))
	}
	fmt.Fprintln(w)
	for _, v := range solver.Verdicts {
		if counts[v] == 0 {
			continue
		}
		style(v).Fprintf(w, "  %-14s %d\n", v, counts[v])
	}
}
