package generator

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteGzipAtomicReplaces(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "stream.yml.gz")

	if err := writeGzipAtomic(dest, []byte("first")); err != nil {
		t.Fatalf("writeGzipAtomic: %v", err)
	}
	if err := writeGzipAtomic(dest, []byte("second")); err != nil {
		t.Fatalf("writeGzipAtomic: %v", err)
	}

	if got := readGzip(t, dest); string(got) != "second" {
		t.Errorf("content = %q, want the replacement", got)
	}
	if _, err := os.Stat(dest + ".new"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestWriteGzipAtomicDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yml.gz")
	b := filepath.Join(dir, "b.yml.gz")
	content := []byte("same content")

	if err := writeGzipAtomic(a, content); err != nil {
		t.Fatal(err)
	}
	if err := writeGzipAtomic(b, content); err != nil {
		t.Fatal(err)
	}
	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	if string(da) != string(db) {
		t.Error("identical content compressed to different bytes")
	}
}

func TestWriteChecksums(t *testing.T) {
	env := newTestEnv(t)
	dir := env.cfg.DEP11Dir("stable", "main")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	meta := []byte("meta stream")
	icons := []byte("icon tarball")
	if err := os.WriteFile(filepath.Join(dir, "Components-amd64.yml.gz"), meta, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "icons-64.tar.gz"), icons, 0o644); err != nil {
		t.Fatal(err)
	}
	// unrelated files must not be listed
	if err := os.WriteFile(filepath.Join(dir, "CHECKSUMS.old"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := env.engine.writeChecksums("stable", "main"); err != nil {
		t.Fatalf("writeChecksums: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "CHECKSUMS"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), content)
	}
	wantFirst := fmt.Sprintf("%x %d Components-amd64.yml.gz", sha256.Sum256(meta), len(meta))
	if lines[0] != wantFirst {
		t.Errorf("line = %q, want %q", lines[0], wantFirst)
	}
	if !strings.HasSuffix(lines[1], "icons-64.tar.gz") {
		t.Errorf("line = %q", lines[1])
	}

	// no signing key configured, so no signature file
	if _, err := os.Stat(filepath.Join(dir, "CHECKSUMS.asc")); !os.IsNotExist(err) {
		t.Error("CHECKSUMS.asc written without a signing key")
	}
}
