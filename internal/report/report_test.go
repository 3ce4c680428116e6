package report

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ruleveri/internal/solver"
)

func Test_ReportOrder(t *testing.T) {
	rep := New()
	var wg sync.WaitGroup
	for e := 2; e >= 0; e-- {
		for i := 1; i >= 0; i-- {
			wg.Add(1)
			go func(e, i int) {
				defer wg.Done()
				rep.Add(&Record{Expansion: e, Instance: i, Rule: "r", Verdict: solver.Valid})
			}(e, i)
		}
	}
	wg.Wait()

	records := rep.Records()
	require.Equal(t, 6, len(records))
	for k, r := range records {
		assert.Equal(t, k/2, r.Expansion)
		assert.Equal(t, k%2, r.Instance)
	}
	assert.Equal(t, 6, rep.Counts()[solver.Valid])
	assert.False(t, rep.Failed())
}

func Test_Summary(t *testing.T) {
	color.NoColor = true
	rep := New()
	rep.Add(&Record{Expansion: 0, Rule: "ok", Verdict: solver.Valid})
	rep.Add(&Record{Expansion: 1, Rule: "bad", Chained: []string{"helper"}, Verdict: solver.Counterexample,
		Model: []string{"(add #x01 #x02) -> #x02"}})
	rep.Add(&Record{Expansion: 2, Rule: "slow", Verdict: solver.Timeout, Reason: "solver time limit reached"})
	rep.Add(&Record{Expansion: 3, Rule: "odd", Verdict: solver.Skipped, Warnings: []string{"inexact"}})

	var buf bytes.Buffer
	rep.Summary(&buf, false)
	out := buf.String()
	assert.True(t, rep.Failed())
	assert.Contains(t, out, "proof failures: 1")
	assert.Contains(t, out, "bad via helper")
	assert.Contains(t, out, "(add #x01 #x02) -> #x02")
	assert.Contains(t, out, "tooling failures: 1")
	assert.Contains(t, out, "solver time limit reached")
	assert.Contains(t, out, "4 instantiations")
	assert.NotContains(t, out, "odd")
	assert.Less(t, strings.Index(out, "proof failures"), strings.Index(out, "tooling failures"))

	buf.Reset()
	rep.Summary(&buf, true)
	assert.Contains(t, buf.String(), "warning: inexact")
}

func Test_ExpansionJSON(t *testing.T) {
	e := &Expansion{ID: 7, Rule: "r", Instances: []*Record{{Expansion: 7, Verdict: solver.Inapplicable}}}
	var buf bytes.Buffer
	require.Nil(t, e.WriteJSON(&buf))
	assert.Contains(t, buf.String(), `"verdict": "inapplicable"`)
	assert.Contains(t, buf.String(), `"id": 7`)
}
