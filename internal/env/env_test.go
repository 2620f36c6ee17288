package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestMergeLaterWins(t *testing.T) {
	t.Parallel()
	got := Merge(Vars{"A": "1", "B": "1"}, nil, Vars{"B": "2"})
	if diff := cmp.Diff(Vars{"A": "1", "B": "2"}, got); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
}

func TestNonBlank(t *testing.T) {
	t.Parallel()
	got := Vars{"A": "x", "B": "", "C": "  "}.NonBlank()
	if diff := cmp.Diff(Vars{"A": "x"}, got); diff != "" {
		t.Errorf("NonBlank() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.env"), []byte("TRIGGER_PHRASE=@bot\nREVIEW_MODEL=one\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.env"), []byte("# comment\nREVIEW_MODEL=\"two\"\n"), 0o600))

	got, err := LoadEnvFiles(dir, []string{"a.env", "", "b.env"})
	require.NoError(t, err)
	if diff := cmp.Diff(Vars{"TRIGGER_PHRASE": "@bot", "REVIEW_MODEL": "two"}, got); diff != "" {
		t.Errorf("LoadEnvFiles() mismatch (-want +got):\n%s", diff)
	}

	_, err = LoadEnvFiles(dir, []string{"missing.env"})
	require.Error(t, err)
}

func TestParse(t *testing.T) {
	t.Parallel()
	got := Parse([]string{"A=1", "B=x=y", "NOEQ", "=v", "C="})
	if diff := cmp.Diff(Vars{"A": "1", "B": "x=y", "C": ""}, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestActionInputs(t *testing.T) {
	t.Parallel()
	got := Vars{
		"INPUT_TRIGGER_PHRASE": "@bot",
		"INPUT_DROID-ARGS":     "--model x",
		"INPUT_":               "ignored",
		"GITHUB_TOKEN":         "t",
	}.ActionInputs()
	if diff := cmp.Diff(Vars{"TRIGGER_PHRASE": "@bot", "DROID_ARGS": "--model x"}, got); diff != "" {
		t.Errorf("ActionInputs() mismatch (-want +got):\n%s", diff)
	}
}
