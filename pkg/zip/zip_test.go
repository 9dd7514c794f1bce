package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveAssetsDeduplicatesNames(t *testing.T) {
	data, err := ArchiveAssets([]Asset{
		{Filename: "ring.png", Data: []byte("a")},
		{Filename: "ring.png", Data: []byte("b")},
		{Filename: "../escape.png", Data: []byte("c")},
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	want := []string{"ring.png", "ring-2.png", "escape.png"}
	if len(zr.File) != len(want) {
		t.Fatalf("entries = %d", len(zr.File))
	}
	for i, f := range zr.File {
		if f.Name != want[i] {
			t.Fatalf("entry %d = %q, want %q", i, f.Name, want[i])
		}
	}
	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "b" {
		t.Fatalf("content = %q", body)
	}
}
