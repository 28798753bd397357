package transform

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"path"
	"strings"
	"time"
)

// Sprite combines SVG icons into one SVG of <symbol> elements, each with the
// icon's base name as its id.
type Sprite struct {
	Path string // Output path, e.g. "sprite.svg"
}

func (s *Sprite) Name() string { return "svg-sprite" }

type svgIcon struct {
	XMLName             xml.Name
	ViewBox             string `xml:"viewBox,attr"`
	PreserveAspectRatio string `xml:"preserveAspectRatio,attr"`
	Inner               []byte `xml:",innerxml"`
}

func (s *Sprite) Apply(ctx context.Context, files []File) ([]File, error) {
	if len(files) == 0 {
		return nil, nil
	}

	var b bytes.Buffer
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink">`)

	ids := make(map[string]string, len(files))
	var modTime time.Time
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := strings.TrimSuffix(path.Base(f.Path), path.Ext(f.Path))
		if prev, ok := ids[id]; ok {
			return nil, fmt.Errorf("%s and %s share the symbol id %q", prev, f.Path, id)
		}
		ids[id] = f.Path

		var icon svgIcon
		if err := xml.Unmarshal(f.Contents, &icon); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		if icon.XMLName.Local != "svg" {
			return nil, fmt.Errorf("%s: root element is <%s>, want <svg>", f.Path, icon.XMLName.Local)
		}

		b.WriteString(`<symbol id="`)
		writeAttr(&b, id)
		b.WriteByte('"')
		if icon.ViewBox != "" {
			b.WriteString(` viewBox="`)
			writeAttr(&b, icon.ViewBox)
			b.WriteByte('"')
		}
		if icon.PreserveAspectRatio != "" {
			b.WriteString(` preserveAspectRatio="`)
			writeAttr(&b, icon.PreserveAspectRatio)
			b.WriteByte('"')
		}
		b.WriteByte('>')
		b.Write(bytes.TrimSpace(icon.Inner))
		b.WriteString(`</symbol>`)

		if f.ModTime.After(modTime) {
			modTime = f.ModTime
		}
	}
	b.WriteString("</svg>\n")

	return []File{{
		Path:     s.Path,
		Source:   files[0].Source,
		Contents: b.Bytes(),
		ModTime:  modTime,
	}}, nil
}

func writeAttr(b *bytes.Buffer, v string) {
	_ = xml.EscapeText(b, []byte(v))
}
