package runner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ruleveri/internal/program"
	"ruleveri/internal/report"
	"ruleveri/internal/solver"
	"ruleveri/internal/spec"
)

func load(t *testing.T) (*program.Program, *spec.Env) {
	prog, err := program.LoadFile("testdata/rules.yaml")
	require.Nil(t, err)
	specs, err := spec.LoadFile("testdata/specs.yaml")
	require.Nil(t, err)
	require.Nil(t, specs.Prepare(spec.DefaultMacroDepth))
	return prog, specs
}

func newRunner(t *testing.T, backend solver.Backend, opts Options) *Runner {
	prog, specs := load(t)
	r, err := New(prog, specs, backend, opts)
	require.Nil(t, err)
	return r
}

func verdicts(rep *report.Report) map[string]solver.Verdict {
	out := map[string]solver.Verdict{}
	for _, rec := range rep.Records() {
		out[rec.Rule] = rec.Verdict
	}
	return out
}

func Test_Filters(t *testing.T) {
	tests := []struct {
		filters []string
		want    []string
	}{
		{nil, []string{"iadd_base", "iadd_zero", "iadd_nz", "iadd_double", "iadd_sub"}},
		{[]string{"exclude:tag:buggy"}, []string{"iadd_base", "iadd_zero", "iadd_nz", "iadd_sub"}},
		{[]string{"include:rule:iadd_nz"}, []string{"iadd_nz"}},
		{[]string{"name:iadd_zero"}, []string{"iadd_zero"}},
		{[]string{"specified"}, []string{"iadd_base", "iadd_zero", "iadd_nz", "iadd_double"}},
		{[]string{"root:lower", "exclude:not:tag:base"}, []string{"iadd_base"}},
		{[]string{"include:root:lower,not:tag:buggy", "exclude:tag:unspecified"}, []string{"iadd_base", "iadd_zero", "iadd_nz"}},
		{[]string{"first-rule-named"}, []string{"iadd_base", "iadd_zero", "iadd_nz", "iadd_double", "iadd_sub"}},
		{[]string{"root:other"}, nil},
	}
	for _, tt := range tests {
		filters, err := ParseFilters(tt.filters)
		require.Nil(t, err, "%v", tt.filters)
		r := newRunner(t, nil, Options{SkipSolver: true, Filters: filters})
		exps, err := r.Expansions()
		require.Nil(t, err)
		var got []string
		for _, e := range exps {
			got = append(got, e.Rule.Name)
		}
		assert.Equal(t, tt.want, got, "%v", tt.filters)
	}
}

func Test_FilterErrors(t *testing.T) {
	for _, s := range []string{"bogus", "tag:", "include:not:", "exclude:root:lower,wat"} {
		_, err := ParseFilter(s)
		assert.NotNil(t, err, s)
	}

	filters, err := ParseFilters([]string{"rule:nope"})
	require.Nil(t, err)
	r := newRunner(t, nil, Options{SkipSolver: true, Filters: filters})
	_, err = r.Expansions()
	assert.NotNil(t, err)

	f, err := ParseFilter("exclude:tag:a,not:root:b")
	require.Nil(t, err)
	assert.Equal(t, "exclude:tag:a,not:root:b", f.String())
}

func Test_RunSkipSolver(t *testing.T) {
	r := newRunner(t, nil, Options{SkipSolver: true, Workers: 2})
	rep, err := r.Run(context.Background())
	require.Nil(t, err)

	got := verdicts(rep)
	assert.Equal(t, solver.Skipped, got["iadd_base"])
	assert.Equal(t, solver.Skipped, got["iadd_double"])
	assert.Equal(t, solver.Error, got["iadd_sub"])
	assert.False(t, rep.Failed())
}

func Test_RunYices(t *testing.T) {
	backend, err := solver.New("yices", 5*time.Second)
	require.Nil(t, err)
	defer backend.Close()

	logDir := filepath.Join(t.TempDir(), DefaultLogDir)
	r := newRunner(t, backend, Options{Workers: 2, LogDir: logDir, ResultsToLogDir: true})
	rep, err := r.Run(context.Background())
	require.Nil(t, err)

	got := verdicts(rep)
	assert.Equal(t, solver.Valid, got["iadd_base"])
	assert.Equal(t, solver.Valid, got["iadd_zero"])
	assert.Equal(t, solver.Valid, got["iadd_nz"])
	assert.Equal(t, solver.Counterexample, got["iadd_double"])
	assert.Equal(t, solver.Error, got["iadd_sub"])
	assert.True(t, rep.Failed())

	records := rep.Records()
	require.Equal(t, 5, len(records))
	for i, rec := range records {
		assert.Equal(t, i, rec.Expansion)
	}
	assert.NotEmpty(t, records[3].Model)
	assert.Contains(t, records[4].Reason, "no spec for term sub")

	assert.FileExists(t, filepath.Join(logDir, "00000", "report.json"))
	assert.FileExists(t, filepath.Join(logDir, "00000", "conditions.txt"))
	assert.FileExists(t, filepath.Join(logDir, "00000", "000", "solver.smt2"))
	data, err := os.ReadFile(filepath.Join(logDir, "00003", "report.json"))
	require.Nil(t, err)
	assert.Contains(t, string(data), `"verdict": "counterexample"`)

	var buf bytes.Buffer
	rep.Summary(&buf, false)
	assert.Contains(t, buf.String(), "proof failures: 1")
	assert.Contains(t, buf.String(), "tooling failures: 1")
}

func Test_RunIgnorePriority(t *testing.T) {
	backend, err := solver.New("yices", 5*time.Second)
	require.Nil(t, err)
	defer backend.Close()

	filters, err := ParseFilters([]string{"rule:iadd_nz"})
	require.Nil(t, err)

	r := newRunner(t, backend, Options{Filters: filters})
	rep, err := r.Run(context.Background())
	require.Nil(t, err)
	assert.Equal(t, solver.Valid, verdicts(rep)["iadd_nz"])

	r = newRunner(t, backend, Options{Filters: filters, IgnorePriority: true})
	rep, err = r.Run(context.Background())
	require.Nil(t, err)
	assert.Equal(t, solver.Counterexample, verdicts(rep)["iadd_nz"])
}

func Test_RunPartialGating(t *testing.T) {
	backend, err := solver.New("yices", 5*time.Second)
	require.Nil(t, err)
	defer backend.Close()

	filters, err := ParseFilters([]string{"rule:iadd_zero"})
	require.Nil(t, err)
	prog, _ := load(t)
	data, err := os.ReadFile("testdata/specs.yaml")
	require.Nil(t, err)

	run := func(specsText string) solver.Verdict {
		specs, err := spec.Load("specs.yaml", []byte(specsText))
		require.Nil(t, err)
		require.Nil(t, specs.Prepare(spec.DefaultMacroDepth))
		r, err := New(prog, specs, backend, Options{Filters: filters})
		require.Nil(t, err)
		rep, err := r.Run(context.Background())
		require.Nil(t, err)
		return verdicts(rep)["iadd_zero"]
	}
	assert.Equal(t, solver.Valid, run(string(data)))

	trusting := strings.Replace(string(data), `matches: ["(= r #x00)"]`, `matches: ["true"]`, 1)
	require.NotEqual(t, string(data), trusting)
	assert.Equal(t, solver.Counterexample, run(trusting))
}

func Test_RunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newRunner(t, nil, Options{SkipSolver: true})
	_, err := r.Run(ctx)
	assert.NotNil(t, err)
}

func Test_NewRequiresBackend(t *testing.T) {
	prog, specs := load(t)
	_, err := New(prog, specs, nil, Options{})
	assert.NotNil(t, err)
}
