package photos

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newStore(t *testing.T) *DiskStore {
	t.Helper()
	log := zerolog.Nop()
	s, err := NewDiskStore(t.TempDir(), "/photos/", &log)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func dataURI(mime, content string) string {
	return "data:image/" + mime + ";base64," + base64.StdEncoding.EncodeToString([]byte(content))
}

func TestIsInline(t *testing.T) {
	if !IsInline("data:image/jpeg;base64,Zm9v") {
		t.Fatal("data URI should be inline")
	}
	if IsInline("/photos/ev1/x.jpg") || IsInline("https://cdn.example.com/x.jpg") {
		t.Fatal("URLs are not inline")
	}
}

func TestSaveURLPassesThrough(t *testing.T) {
	s := newStore(t)
	url, err := s.Save("ev1", "/photos/ev1/existing.jpg")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if url != "/photos/ev1/existing.jpg" {
		t.Fatalf("URL should pass through untouched, got %q", url)
	}
}

func TestSaveInlinePhoto(t *testing.T) {
	s := newStore(t)
	url, err := s.Save("ev1", dataURI("png", "fake png bytes"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(url, "/photos/ev1/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("unexpected url %q", url)
	}

	// the file really exists and holds the decoded bytes
	name := strings.TrimPrefix(url, "/photos/ev1/")
	data, err := os.ReadFile(filepath.Join(s.baseDir, "ev1", name))
	if err != nil {
		t.Fatalf("read stored photo: %v", err)
	}
	if string(data) != "fake png bytes" {
		t.Fatalf("stored bytes differ: %q", data)
	}
}

func TestSaveJpegAliases(t *testing.T) {
	s := newStore(t)
	for _, mime := range []string{"jpeg", "jpg"} {
		url, err := s.Save("ev1", dataURI(mime, "x"))
		if err != nil {
			t.Fatalf("save %s: %v", mime, err)
		}
		if !strings.HasSuffix(url, ".jpg") {
			t.Fatalf("want .jpg extension for %s, got %q", mime, url)
		}
	}
}

func TestSaveRejectsBadPayloads(t *testing.T) {
	s := newStore(t)
	bad := []string{
		"data:image/jpeg,no-base64-marker",
		"data:image/gif;base64," + base64.StdEncoding.EncodeToString([]byte("x")),
		"data:image/png;base64,!!!not-base64!!!",
		"data:image/png;base64,",
	}
	for _, payload := range bad {
		if _, err := s.Save("ev1", payload); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("payload %q: want ErrInvalidPayload, got %v", payload[:20], err)
		}
	}
}
