package transform

import (
	"context"
	"encoding/json"
	"path"
	"strings"
	"time"
)

// Concat joins its inputs, in order, into one file at Path. With SourceMaps
// set, it emits a line-level map back to each input.
type Concat struct {
	Path       string
	SourceMaps bool
}

func (c *Concat) Name() string { return "concat" }

func (c *Concat) Apply(ctx context.Context, files []File) ([]File, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		b       strings.Builder
		m       = newLineMap(c.Path)
		modTime time.Time
	)
	for _, f := range files {
		text := StripSourceMapComment(string(f.Contents))
		lines := strings.Split(text, "\n")
		if lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		m.addSource(f.Path, text, len(lines))
		for _, line := range lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		if f.ModTime.After(modTime) {
			modTime = f.ModTime
		}
	}

	out := File{
		Path:     c.Path,
		Source:   files[0].Source,
		Contents: []byte(b.String()),
		ModTime:  modTime,
	}
	if c.SourceMaps {
		data, err := m.encode()
		if err != nil {
			return nil, err
		}
		out.SourceMap = data
		out.Contents = append([]byte(strings.TrimRight(b.String(), "\n")), sourceMapURL(path.Base(c.Path)+".map", false)...)
	}
	return []File{out}, nil
}

type sourceMapV3 struct {
	Version        int      `json:"version"`
	File           string   `json:"file"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// lineMap builds a source map where every generated line maps to column 0 of
// one source line.
type lineMap struct {
	sm       sourceMapV3
	mappings strings.Builder
	lines    int
	prevSrc  int
	prevLine int
}

func newLineMap(file string) *lineMap {
	return &lineMap{sm: sourceMapV3{Version: 3, File: path.Base(file), Names: []string{}}}
}

func (m *lineMap) addSource(name, content string, lines int) {
	idx := len(m.sm.Sources)
	m.sm.Sources = append(m.sm.Sources, name)
	m.sm.SourcesContent = append(m.sm.SourcesContent, content)
	for l := 0; l < lines; l++ {
		if m.lines > 0 {
			m.mappings.WriteByte(';')
		}
		m.mappings.WriteString(vlq(0))
		m.mappings.WriteString(vlq(idx - m.prevSrc))
		m.mappings.WriteString(vlq(l - m.prevLine))
		m.mappings.WriteString(vlq(0))
		m.prevSrc, m.prevLine = idx, l
		m.lines++
	}
}

func (m *lineMap) encode() ([]byte, error) {
	m.sm.Mappings = m.mappings.String()
	if m.sm.Sources == nil {
		m.sm.Sources = []string{}
		m.sm.SourcesContent = []string{}
	}
	return json.Marshal(m.sm)
}

const vlqAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// vlq encodes n as a base64 variable-length quantity.
func vlq(n int) string {
	v := n << 1
	if n < 0 {
		v = (-n << 1) | 1
	}
	var b strings.Builder
	for {
		digit := v & 31
		v >>= 5
		if v > 0 {
			digit |= 32
		}
		b.WriteByte(vlqAlphabet[digit])
		if v == 0 {
			return b.String()
		}
	}
}
