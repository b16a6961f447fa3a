package staging

import (
	"bytes"
	"strings"
	"testing"
)

func newTestArea(t *testing.T) *Area {
	t.Helper()
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestArea_WritePartThenParts(t *testing.T) {
	a := newTestArea(t)

	if err := a.WritePart("upload-1", 0, strings.NewReader("part zero")); err != nil {
		t.Fatalf("WritePart 0: %v", err)
	}
	if err := a.WritePart("upload-1", 1, strings.NewReader("part one")); err != nil {
		t.Fatalf("WritePart 1: %v", err)
	}

	paths, err := a.Parts("upload-1")
	if err != nil {
		t.Fatalf("Parts: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(paths))
	}
	if !strings.HasSuffix(paths[0], "/0") || !strings.HasSuffix(paths[1], "/1") {
		t.Errorf("parts not returned in ascending index order: %v", paths)
	}
}

func TestArea_PartsRejectsGap(t *testing.T) {
	a := newTestArea(t)

	if err := a.WritePart("upload-2", 0, strings.NewReader("zero")); err != nil {
		t.Fatalf("WritePart 0: %v", err)
	}
	// Deliberately skip index 1.
	if err := a.WritePart("upload-2", 2, strings.NewReader("two")); err != nil {
		t.Fatalf("WritePart 2: %v", err)
	}

	if _, err := a.Parts("upload-2"); err == nil {
		t.Error("expected Parts to reject an upload with a missing part index")
	}
}

func TestArea_PartsUnknownUploadID(t *testing.T) {
	a := newTestArea(t)
	if _, err := a.Parts("never-uploaded"); err == nil {
		t.Error("expected an error for an unknown upload_id")
	}
}

func TestArea_WritePartRejectsNegativeIndex(t *testing.T) {
	a := newTestArea(t)
	if err := a.WritePart("upload-3", -1, strings.NewReader("x")); err == nil {
		t.Error("expected an error for a negative chunk_index")
	}
}

func TestArea_Cleanup(t *testing.T) {
	a := newTestArea(t)
	if err := a.WritePart("upload-4", 0, bytes.NewReader([]byte("data"))); err != nil {
		t.Fatalf("WritePart: %v", err)
	}
	if err := a.Cleanup("upload-4"); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := a.Parts("upload-4"); err == nil {
		t.Error("expected Parts to fail after Cleanup removed the upload directory")
	}
}
