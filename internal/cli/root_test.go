package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medialskel/pkg/errors"
	"medialskel/pkg/pipeline"
)

// run executes the CLI with args and returns stdout. A missing config file
// in a temp dir keeps the working directory's config out of the test.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand(&stderr)
	root.SetOut(&stdout)
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestSetVersion(t *testing.T) {
	defer SetVersion(version, commit, date)
	SetVersion("1.0.0", "abc123", "2026-01-01")
	if version != "1.0.0" || commit != "abc123" || date != "2026-01-01" {
		t.Errorf("SetVersion did not update build info: %s %s %s", version, commit, date)
	}
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")

	out, err := run(t, "init-config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[thinning]")

	_, err = run(t, "init-config", path)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	_, err = run(t, "init-config", "--force", path)
	assert.NoError(t, err)
}

func TestPhantomSkeletonizeLabel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end CLI run in short mode")
	}
	dir := t.TempDir()
	mask := filepath.Join(dir, "ball.binvox")

	out, err := run(t, "phantom", "sphere", "-o", mask, "--size", "15", "--radius", "5.5")
	require.NoError(t, err)
	assert.Contains(t, out, "object voxels")

	outDir := filepath.Join(dir, "out")
	out, err = run(t, "skeletonize", mask, "-o", outDir,
		"--simple-test", "components", "--margin", "100", "-j", "2", "--labels")
	require.NoError(t, err)
	assert.Contains(t, out, "skeleton:")
	assert.FileExists(t, filepath.Join(outDir, pipeline.ReportFile))
	assert.FileExists(t, filepath.Join(outDir, pipeline.LabelsFile))

	labels := filepath.Join(dir, "labels.mha")
	out, err = run(t, "label", filepath.Join(outDir, pipeline.SkeletonFile), "-o", labels)
	require.NoError(t, err)
	assert.Contains(t, out, "labels:")
	assert.FileExists(t, labels)
}

func TestFluxCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "ball.mha")
	_, err := run(t, "phantom", "sphere", "-o", input, "--size", "11", "--radius", "4")
	require.NoError(t, err)

	output := filepath.Join(dir, "flux.mha")
	out, err := run(t, "flux", input, "-o", output, "--margin", "0", "--directions", "20",
		"--histogram", filepath.Join(dir, "flux.png"))
	require.NoError(t, err)
	assert.Contains(t, out, "evaluated:")
	assert.FileExists(t, output)
	assert.FileExists(t, filepath.Join(dir, "flux.png"))
}

func TestCommandErrors(t *testing.T) {
	_, err := run(t, "skeletonize", "in.mha", "--mode", "volume")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig))

	_, err = run(t, "phantom", "teapot", "-o", filepath.Join(t.TempDir(), "t.mha"))
	assert.Error(t, err)

	_, err = run(t, "skeletonize")
	assert.Error(t, err)

	_, err = run(t, "label", filepath.Join(t.TempDir(), "missing.mha"))
	assert.True(t, errors.Is(err, errors.ErrCodeIO))
}

func TestHelpListsCommands(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"skeletonize", "flux", "label", "phantom", "init-config"} {
		assert.True(t, strings.Contains(out, name), "help should list %s", name)
	}
}
