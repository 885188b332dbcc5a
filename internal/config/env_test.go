package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeEnv(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEnvFile_missing(t *testing.T) {
	err := LoadEnvFile(filepath.Join(t.TempDir(), "nonexistent"))
	if err != nil {
		t.Fatalf("missing file should return nil: %v", err)
	}
}

func TestLoadEnvFile_setsEnv(t *testing.T) {
	os.Unsetenv("EPGNORM_TEST_FOO")
	os.Unsetenv("EPGNORM_TEST_BAZ")
	t.Cleanup(func() {
		os.Unsetenv("EPGNORM_TEST_FOO")
		os.Unsetenv("EPGNORM_TEST_BAZ")
	})
	path := writeEnv(t, "EPGNORM_TEST_FOO=bar\n# comment\nexport EPGNORM_TEST_BAZ=quux\nnot a pair\n")
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if os.Getenv("EPGNORM_TEST_FOO") != "bar" {
		t.Errorf("FOO = %q", os.Getenv("EPGNORM_TEST_FOO"))
	}
	if os.Getenv("EPGNORM_TEST_BAZ") != "quux" {
		t.Errorf("BAZ = %q", os.Getenv("EPGNORM_TEST_BAZ"))
	}
}

func TestLoadEnvFile_unquote(t *testing.T) {
	os.Unsetenv("EPGNORM_TEST_X")
	t.Cleanup(func() { os.Unsetenv("EPGNORM_TEST_X") })
	path := writeEnv(t, `EPGNORM_TEST_X="hello world"`)
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if os.Getenv("EPGNORM_TEST_X") != "hello world" {
		t.Errorf("X = %q", os.Getenv("EPGNORM_TEST_X"))
	}
}

func TestLoadEnvFile_processEnvWins(t *testing.T) {
	t.Setenv("EPGNORM_TEST_KEEP", "from-env")
	path := writeEnv(t, "EPGNORM_TEST_KEEP=from-file\n")
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("EPGNORM_TEST_KEEP"); got != "from-env" {
		t.Errorf("KEEP = %q, want from-env", got)
	}
}

func TestParseEnv(t *testing.T) {
	got, err := ParseEnv(strings.NewReader(`
# guide
EPGNORM_XMLTV_URL=http://host/guide.xml.gz  # nightly
export EPGNORM_PARSER = scan
EPGNORM_UNKNOWN_CHANNEL='Sans nom # 1'
BAD KEY=x
=novalue
EPGNORM_EMPTY=
`))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"EPGNORM_XMLTV_URL":       "http://host/guide.xml.gz",
		"EPGNORM_PARSER":          "scan",
		"EPGNORM_UNKNOWN_CHANNEL": "Sans nom # 1",
		"EPGNORM_EMPTY":           "",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseEnv mismatch (-want +got):\n%s", diff)
	}
}
