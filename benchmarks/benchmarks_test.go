package benchmarks

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/crm/store"
	"github.com/zeu5/crm/types"
)

func execute(t *testing.T, args ...string) (string, *cli, error) {
	t.Helper()
	cmd, c := newRootCommand()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), c, err
}

func TestConfigFileIsOverriddenByFlags(t *testing.T) {
	file := filepath.Join(t.TempDir(), "crm.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
episodes: 7
runs: 4
grid:
  size: 6
learner:
  alpha: 0.5
  gamma: 0.8
`), 0644))

	_, c, err := execute(t, "rm", "list", "--config", file, "--runs", "2", "--gamma", "0.95")
	require.NoError(t, err)
	assert.Equal(t, 7, c.config.Episodes)
	assert.Equal(t, 2, c.config.Runs)
	assert.Equal(t, 6, c.config.Grid.Size)
	assert.Equal(t, 0.5, c.config.Learner.Alpha)
	assert.Equal(t, 0.95, c.config.Learner.Gamma)
	// untouched values keep their defaults
	assert.Equal(t, 0.995, c.config.Learner.EpsilonDecay)
}

func TestInvalidConfig(t *testing.T) {
	_, _, err := execute(t, "rm", "list", "--alpha", "0")
	assert.Error(t, err)
	_, _, err = execute(t, "rm", "list", "--log-level", "loud")
	assert.Error(t, err)
	_, _, err = execute(t, "rm", "list", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMachineCommands(t *testing.T) {
	out, _, err := execute(t, "rm", "list")
	require.NoError(t, err)
	assert.Equal(t, "doorkey\ndoorkey2\n", out)

	out, _, err = execute(t, "rm", "check", "doorkey")
	require.NoError(t, err)
	assert.Contains(t, out, "initial: 0\n")
	assert.Contains(t, out, "states: [0 1 2]\n")
	assert.Contains(t, out, "terminals: [3]\n")
	assert.Contains(t, out, "propositions: door, goal, key\n")
	assert.Contains(t, out, "2,3,\"goal\",1\n")

	file := filepath.Join(t.TempDir(), "shaped.txt")
	_, _, err = execute(t, "rm", "export", "doorkey2", file)
	require.NoError(t, err)
	out, _, err = execute(t, "rm", "check", file)
	require.NoError(t, err)
	assert.Contains(t, out, "1,3,\"door & goal\",1.3\n")

	_, _, err = execute(t, "rm", "check", "nothing")
	assert.Error(t, err)
}

func TestDoorKeyCommand(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	_, _, err := execute(t, "doorkey", "crm",
		"--episodes", "5", "--runs", "2", "--size", "3", "--seed", "7",
		"--save", dir, "--results-db", db, "--tables", filepath.Join(dir, "tables"),
		"--log-level", "error",
	)
	require.NoError(t, err)

	for _, f := range []string{
		"comparison_config.json",
		"crm_3x3_0.json",
		"crm_3x3_1.json",
		"crm_3x3_avg.json",
		"curves.png",
		filepath.Join("heatmaps", "0_crm_3x3_visits.png"),
		filepath.Join("states", "1_coverage.png"),
		filepath.Join("tables", "crm_3x3_1.qtable.json"),
	} {
		assert.FileExists(t, filepath.Join(dir, f))
	}

	run, err := types.LoadRun(filepath.Join(dir, "crm_3x3_0.json"))
	require.NoError(t, err)
	assert.Equal(t, 5, run.Episodes())

	ctx := context.Background()
	results := store.NewSQLiteStore(db)
	require.NoError(t, results.Init(ctx))
	defer results.Close()
	ids, err := results.RunIDs(ctx, "crm_3x3")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestCompareInParallel(t *testing.T) {
	_, _, err := execute(t, "compare", "q", "bl2", "net",
		"--episodes", "3", "--runs", "2", "--size", "3", "--seed", "1",
		"--parallel", "3", "--save", "", "--log-level", "error", "--hidden", "4",
	)
	require.NoError(t, err)

	_, _, err = execute(t, "compare", "sarsa", "--save", "", "--log-level", "error")
	assert.ErrorContains(t, err, "unknown algorithm")
	_, _, err = execute(t, "doorkey", "--save", "")
	assert.Error(t, err)
}
