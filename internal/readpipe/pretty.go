package readpipe

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"io"
)

// Preview is the rendered form of a text asset, matching the dict
// get_asset_preview builds for type == 'text' assets.
type Preview struct {
	ID           int64
	Type         string
	Format       string
	Filename     string
	SizeOriginal int64
	Content      string
}

// BuildPreview decodes a text asset as UTF-8, substituting U+FFFD for
// invalid sequences rather than failing, and pretty-prints JSON or XML
// content. Any other format, or a pretty-print failure, falls back to
// the raw decoded text.
func BuildPreview(info *AssetInfo, raw []byte) *Preview {
	text := decodeLossy(raw)

	switch info.Format {
	case "json":
		if pretty, ok := prettyJSON(text); ok {
			text = pretty
		}
	case "xml":
		if pretty, ok := prettyXML(text); ok {
			text = pretty
		}
	}

	return &Preview{
		ID:           info.ID,
		Type:         "text",
		Format:       info.Format,
		Filename:     info.Filename,
		SizeOriginal: info.Size,
		Content:      text,
	}
}

// decodeLossy decodes raw as UTF-8, substituting U+FFFD for invalid
// byte sequences instead of erroring, matching Python's
// str.decode('utf-8', errors='replace').
func decodeLossy(raw []byte) string {
	return string(bytes.ToValidUTF8(raw, []byte("�")))
}

func prettyJSON(text string) (string, bool) {
	var v interface{}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return "", false
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", false
	}
	return string(pretty), true
}

// prettyXML re-emits an XML document with two-space indentation by
// replaying its token stream through an indenting encoder, the nearest
// stdlib equivalent of ElementTree's ET.indent + tostring.
func prettyXML(text string) (string, bool) {
	decoder := xml.NewDecoder(bytes.NewReader([]byte(text)))

	var buf bytes.Buffer
	encoder := xml.NewEncoder(&buf)
	encoder.Indent("", "  ")

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", false
		}
		if err := encoder.EncodeToken(tok); err != nil {
			return "", false
		}
	}
	if err := encoder.Flush(); err != nil {
		return "", false
	}
	return buf.String(), true
}
