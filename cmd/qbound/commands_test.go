package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/qbound/qbound/qbound"
	"github.com/stretchr/testify/require"
)

// execute runs the command line in-process.  Flags not given keep their values from earlier runs, so the
// switches are reset first.
func execute(args ...string) (string, error) {
	flags.source, flags.matrix, flags.yes = "store", false, false

	out := bytes.Buffer{}
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "qbound.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("confirm_above: 0\n"), 0644))

	common := []string{
		"--config", configPath,
		"--data-dir", filepath.Join(dir, "store"),
		"--catalog", filepath.Join(dir, "catalog"),
		"--max-vertices", "4",
		"--invariant", "cycle-rank",
	}
	run := func(args ...string) string {
		out, err := execute(append(args, common...)...)
		require.NoError(t, err, args)
		return out
	}

	out := run("run", "--every", "3")
	require.Contains(t, out, "resumed pass 1 at (2,1), pass 2 at (1,0)")

	out = run("run")
	require.Contains(t, out, "propagated 0, classified 0")

	out = run("value", "1-2-3-1", "--source", "store")
	require.Equal(t, "Bw n=3 m=3 value=1\n", out)

	out = run("value", "--matrix", "0111,1011,1101,1110", "--source", "catalog")
	require.Equal(t, "C~ n=4 m=6 value=3\n", out)

	out = run("minimals", "--source", "catalog")
	require.Contains(t, out, "value   1: 1 minimal graphs")

	_, err := execute(append([]string{"minimals", "1", "--source", "store"}, common...)...)
	require.ErrorContains(t, err, "--yes")
	out = run("minimals", "1", "--yes", "--source", "store")
	require.Contains(t, out, "Bw")

	out = run("represent", "1-2-3-4-1", "--source", "store")
	require.Contains(t, out, "representative 1-2,1-3,2-3")

	out = run("frontier")
	require.NotContains(t, out, "cold")
	require.NotContains(t, out, "LOST")

	out = run("config")
	require.Contains(t, out, "max_vertices: 4")

	_, err = execute(append([]string{"value", "1-2,3-4", "--source", "store"}, common...)...)
	require.ErrorIs(t, err, qbound.ErrInvalidGraph)

	_, err = execute(append([]string{"value", "1-2", "--source", "nowhere"}, common...)...)
	require.Error(t, err)
}
