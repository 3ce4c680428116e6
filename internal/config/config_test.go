package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) (*Config, error) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.Nil(t, fs.Parse(args))
	v := New()
	if err := BindFlags(v, fs); err != nil {
		return nil, err
	}
	return Load(v)
}

func Test_Defaults(t *testing.T) {
	c, err := load(t)
	require.Nil(t, err)
	assert.Equal(t, "z3", c.Solver)
	assert.Equal(t, 10*time.Second, c.Timeout)
	assert.Equal(t, ".veriisle", c.LogDir)
	assert.Equal(t, "lower", c.Root)
	assert.Equal(t, 4, c.ChainDepth)
	assert.Equal(t, 64, c.MacroDepth)
	assert.Empty(t, c.Filters)
}

func Test_Flags(t *testing.T) {
	c, err := load(t, "--solver", "cvc5", "--timeout", "3s", "--filter", "exclude:tag:slow",
		"--filter", "include:root:lower", "--ignore-priority", "--log-dir", "")
	require.Nil(t, err)
	assert.Equal(t, "cvc5", c.Solver)
	assert.Equal(t, 3*time.Second, c.Timeout)
	assert.Equal(t, []string{"exclude:tag:slow", "include:root:lower"}, c.Filters)
	assert.True(t, c.IgnorePriority)
	assert.Equal(t, "", c.LogDir)
}

func Test_Environment(t *testing.T) {
	t.Setenv("ISLE_VERI_SOLVER", "yices")
	t.Setenv("ISLE_VERI_TIMEOUT", "2s")
	t.Setenv("RULEVERI_WORKERS", "3")
	c, err := load(t)
	require.Nil(t, err)
	assert.Equal(t, "yices", c.Solver)
	assert.Equal(t, 2*time.Second, c.Timeout)
	assert.Equal(t, 3, c.Workers)

	c, err = load(t, "--solver", "z3")
	require.Nil(t, err)
	assert.Equal(t, "z3", c.Solver)
}

func Test_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ruleveri.yaml")
	data := "solver: yices\nroot: simplify\nfilters: [\"tag:fast\"]\nchain_depth: 2\n"
	require.Nil(t, os.WriteFile(path, []byte(data), 0o644))

	c, err := load(t, "--config", path)
	require.Nil(t, err)
	assert.Equal(t, "yices", c.Solver)
	assert.Equal(t, "simplify", c.Root)
	assert.Equal(t, []string{"tag:fast"}, c.Filters)
	assert.Equal(t, 2, c.ChainDepth)

	_, err = load(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NotNil(t, err)
}

func Test_Validate(t *testing.T) {
	_, err := load(t, "--solver", "mathsat")
	assert.NotNil(t, err)
	_, err = load(t, "--timeout", "0s")
	assert.NotNil(t, err)
	_, err = load(t, "--workers", "-1")
	assert.NotNil(t, err)
	_, err = load(t, "--root", "")
	assert.NotNil(t, err)
}
