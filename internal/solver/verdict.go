// Package solver decides encoded verification conditions with an
// external SMT solver process or the in-process yices library.
package solver

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"ruleveri/internal/veri"
)

type Verdict int

const (
	Valid Verdict = iota
	Counterexample
	// Inapplicable: the assumptions are unsatisfiable, so the rule never
	// fires under this instantiation.
	Inapplicable
	Unknown
	Timeout
	// Skipped: the instantiation was not sent to a solver, because it did
	// not type check or solving was disabled.
	Skipped
	Error
)

var verdictNames = map[Verdict]string{
	Valid:          "valid",
	Counterexample: "counterexample",
	Inapplicable:   "inapplicable",
	Unknown:        "unknown",
	Timeout:        "timeout",
	Skipped:        "skipped",
	Error:          "error",
}

// Verdicts lists every verdict in report order.
var Verdicts = []Verdict{Valid, Counterexample, Inapplicable, Unknown, Timeout, Skipped, Error}

func (v Verdict) String() string {
	if name, ok := verdictNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Verdict) UnmarshalText(text []byte) error {
	for k, name := range verdictNames {
		if name == string(text) {
			*v = k
			return nil
		}
	}
	return errors.Errorf("unknown verdict %q", text)
}

// Failed reports a proof failure: the rule is wrong under the
// instantiation.
func (v Verdict) Failed() bool {
	return v == Counterexample
}

// Inconclusive reports a tooling failure that says nothing about the rule.
func (v Verdict) Inconclusive() bool {
	return v == Unknown || v == Timeout || v == Error
}

// Result is the outcome of one solver run.
type Result struct {
	Verdict  Verdict
	Model    veri.Model
	Reason   string
	Duration time.Duration
}
