package main

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psd2png/psd_decoder/psdtest"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func sampleTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	doc := psdtest.FromNRGBA(psdtest.Fill(image.Rect(0, 0, 3, 3), 10, 20, 30, 255))
	doc.Resources = map[uint16][]byte{psdtest.ResResolutionInfo: psdtest.ResolutionInfo(300)}
	require.NoError(t, os.WriteFile(filepath.Join(root, "good.psd"), doc.Bytes(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.psd"), []byte("8BPS garbage"), 0o644))
	return root
}

func TestRoot_ConvertsTree(t *testing.T) {
	root := sampleTree(t)

	stdout, stderr, err := execute(t, root)
	require.NoError(t, err, "failed files must not fail the command")

	assert.FileExists(t, filepath.Join(root, "good.png"))
	assert.NoFileExists(t, filepath.Join(root, "broken.png"))
	assert.Contains(t, stdout, "converted: "+filepath.Join(root, "good.psd"))
	assert.Contains(t, stdout, "failed: "+filepath.Join(root, "broken.psd")+": decode error:")
	assert.Contains(t, stdout, "Batch summary: 1 converted, 1 failed (total: 2)")
	assert.Contains(t, stderr, "Total time taken")
}

func TestRoot_PathFlagAndReport(t *testing.T) {
	root := sampleTree(t)
	report := filepath.Join(t.TempDir(), "report.yaml")

	_, _, err := execute(t, "-p", root, "--format", "tiff", "--workers", "2", "--report", report)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(root, "good.tiff"))
	data, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), "converted: 1")
	assert.Contains(t, string(data), "stage: decode")
}

func TestRoot_ConfigFileAndEnv(t *testing.T) {
	root := sampleTree(t)
	cfg := filepath.Join(t.TempDir(), "psd2png.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("path: "+root+"\nformat: tiff\n"), 0o644))

	_, stderr, err := execute(t, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Using config file: "+cfg)
	assert.FileExists(t, filepath.Join(root, "good.tiff"))

	t.Setenv("PSD2PNG_FORMAT", "png")
	_, _, err = execute(t, root)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "good.png"))
}

func TestRoot_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing root", []string{filepath.Join(t.TempDir(), "nope")}, "cannot start batch"},
		{"unknown format", []string{"--format", "gif", t.TempDir()}, "invalid configuration"},
		{"unknown composite mode", []string{"--composite", "magic", t.TempDir()}, "invalid configuration"},
		{"zero workers", []string{"--workers", "0", t.TempDir()}, "invalid configuration"},
		{"too many args", []string{"a", "b"}, "accepts at most 1 arg"},
		{"missing config file", []string{"--config", filepath.Join(t.TempDir(), "none.yaml"), t.TempDir()}, "reading config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "psd2png dev\n", stdout)
}

func TestIdentify(t *testing.T) {
	root := sampleTree(t)

	stdout, _, err := execute(t, "identify", filepath.Join(root, "good.psd"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Format:      PSD (version 1)")
	assert.Contains(t, stdout, "Dimensions:  3 x 3")
	assert.Contains(t, stdout, "Color mode:  RGB")
	assert.Contains(t, stdout, "Resolution:  300.00 dpi")

	_, _, err = execute(t, root)
	require.NoError(t, err)
	stdout, _, err = execute(t, "identify", filepath.Join(root, "good.png"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Format:      PNG")
	assert.Contains(t, stdout, "Resolution:  300.00 dpi")

	_, _, err = execute(t, "identify", filepath.Join(root, "broken.psd"))
	assert.Error(t, err)
}
