package readpipe

import (
	"strings"
	"testing"
)

func TestBuildPreview_PrettyPrintsJSON(t *testing.T) {
	info := &AssetInfo{ID: 1, Filename: "data.json", Format: "json", Size: 20}
	raw := []byte(`{"b":2,"a":1}`)

	preview := BuildPreview(info, raw)
	if !strings.Contains(preview.Content, "\n") {
		t.Error("expected pretty-printed JSON to contain newlines")
	}
	if !strings.Contains(preview.Content, "\"a\": 1") {
		t.Errorf("pretty JSON missing expected field, got: %s", preview.Content)
	}
}

func TestBuildPreview_FallsBackOnInvalidJSON(t *testing.T) {
	info := &AssetInfo{ID: 1, Filename: "broken.json", Format: "json"}
	raw := []byte(`{not valid json`)

	preview := BuildPreview(info, raw)
	if preview.Content != string(raw) {
		t.Errorf("expected raw fallback for invalid JSON, got %q", preview.Content)
	}
}

func TestBuildPreview_PrettyPrintsXML(t *testing.T) {
	info := &AssetInfo{ID: 2, Filename: "data.xml", Format: "xml"}
	raw := []byte(`<root><child>value</child></root>`)

	preview := BuildPreview(info, raw)
	if !strings.Contains(preview.Content, "\n") {
		t.Error("expected pretty-printed XML to contain newlines")
	}
	if !strings.Contains(preview.Content, "<child>") {
		t.Errorf("pretty XML missing expected element, got: %s", preview.Content)
	}
}

func TestBuildPreview_PlainTextPassesThrough(t *testing.T) {
	info := &AssetInfo{ID: 3, Filename: "notes.txt", Format: "txt"}
	raw := []byte("just plain text, nothing special")

	preview := BuildPreview(info, raw)
	if preview.Content != string(raw) {
		t.Errorf("plain text should pass through unchanged, got %q", preview.Content)
	}
}

func TestBuildPreview_InvalidUTF8IsReplacedNotRejected(t *testing.T) {
	info := &AssetInfo{ID: 4, Filename: "binaryish.txt", Format: "txt"}
	raw := []byte{0x68, 0x65, 0x6c, 0x6c, 0xff, 0xfe, 0x6f}

	preview := BuildPreview(info, raw)
	if preview.Content == "" {
		t.Error("expected a non-empty preview even for invalid UTF-8 input")
	}
	if !strings.Contains(preview.Content, "�") {
		t.Errorf("expected invalid bytes to be substituted with U+FFFD, got %q", preview.Content)
	}
	if !strings.HasPrefix(preview.Content, "hell") || !strings.HasSuffix(preview.Content, "o") {
		t.Errorf("expected valid bytes around the invalid run to survive, got %q", preview.Content)
	}
}
