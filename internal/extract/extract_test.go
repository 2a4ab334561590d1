package extract

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFromFilePlainText(t *testing.T) {
	path := writeTemp(t, "notes.txt", "  hello world\x00 with control\x01 bytes  ")
	res, err := FromFile(path, "text/plain", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "hello world with control bytes" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
	if res.Pages != nil {
		t.Fatal("plain text should carry no page spans")
	}
}

func TestFromFileMarkdown(t *testing.T) {
	path := writeTemp(t, "readme.md", "# Title\n\nbody text")
	res, err := FromFile(path, "text/markdown", "readme.md")
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "# Title\n\nbody text" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
}

func TestFromFileEmpty(t *testing.T) {
	path := writeTemp(t, "empty.txt", "   \n  ")
	_, err := FromFile(path, "text/plain", "empty.txt")
	if !errors.Is(err, ErrNoExtractableText) {
		t.Fatalf("expected ErrNoExtractableText, got %v", err)
	}
}

func TestFromFileMissing(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "gone.txt"), "text/plain", "gone.txt")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
