package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("FINSIGHT_TEST_VAR=from-file\nFINSIGHT_TEST_SET=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FINSIGHT_TEST_SET", "from-env")
	t.Setenv("FINSIGHT_TEST_VAR", "")
	os.Unsetenv("FINSIGHT_TEST_VAR")

	if err := LoadEnvFile(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}
	if got := os.Getenv("FINSIGHT_TEST_VAR"); got != "from-file" {
		t.Errorf("FINSIGHT_TEST_VAR = %q, want from-file", got)
	}
	if got := os.Getenv("FINSIGHT_TEST_SET"); got != "from-env" {
		t.Errorf("FINSIGHT_TEST_SET = %q, want from-env", got)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"anomalies", []string{"anomalies"}},
		{" anomalies, ,insight ", []string{"anomalies", "insight"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, SplitList(tt.in)); diff != "" {
			t.Errorf("SplitList(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
