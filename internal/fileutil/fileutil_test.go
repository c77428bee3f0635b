package fileutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestSafeJoin(t *testing.T) {
	dir := t.TempDir()
	got, err := SafeJoin(dir, "tts_wf_1.wav")
	if err != nil {
		t.Fatalf("SafeJoin: %v", err)
	}
	if got != filepath.Join(dir, "tts_wf_1.wav") {
		t.Fatalf("unexpected path %q", got)
	}
	for _, name := range []string{"", "..", ".", "../etc/passwd", "a/b.wav", `a\b.wav`} {
		if _, err := SafeJoin(dir, name); !errors.Is(err, ErrUnsafeName) {
			t.Fatalf("SafeJoin(%q) expected ErrUnsafeName, got %v", name, err)
		}
	}
}

func TestWriteAtomic(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "out.bin")
	n, err := WriteAtomic(target, 0o600, func(w io.Writer) error {
		_, err := w.Write([]byte("hello"))
		return err
	})
	if err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes, got %d", n)
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600, got %v", info.Mode().Perm())
	}
	entries, _ := os.ReadDir(filepath.Dir(target))
	if len(entries) != 1 {
		t.Fatalf("expected temp file cleanup, found %d entries", len(entries))
	}
}

func TestWriteAtomicFailureLeavesNoFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out.bin")
	boom := errors.New("boom")
	if _, err := WriteAtomic(target, 0o644, func(io.Writer) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("expected no file after failed write, got %v", err)
	}
}

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.wav")
	dst := filepath.Join(dir, "dst.wav")
	if err := os.WriteFile(src, []byte("verified content"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	n, err := CopyFileVerified(src, dst)
	if err != nil {
		t.Fatalf("CopyFileVerified: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(data) != "verified content" || n != int64(len(data)) {
		t.Fatalf("unexpected copy %q (%d bytes)", data, n)
	}
}

func TestCopyFileVerified_MissingSource(t *testing.T) {
	dir := t.TempDir()
	if _, err := CopyFileVerified(filepath.Join(dir, "missing"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error for missing source")
	}
}
