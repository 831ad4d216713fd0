package build

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
)

const base64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// appendVLQ appends v in the base64 VLQ encoding of source map mappings.
func appendVLQ(buf []byte, v int) []byte {
	u := v << 1
	if v < 0 {
		u = (-v << 1) | 1
	}
	for {
		digit := u & 31
		u >>= 5
		if u > 0 {
			digit |= 32
		}
		buf = append(buf, base64Digits[digit])
		if u == 0 {
			return buf
		}
	}
}

// sourceMap is a version 3 source map with line-level mappings: every
// generated line of a module maps to column 0 of a source line.
type sourceMap struct {
	Version        int      `json:"version"`
	File           string   `json:"file"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

type mapBuilder struct {
	sources  []string
	contents []string
	mappings []byte
	line     int

	prevSource, prevLine int
	withContent          bool
}

func newMapBuilder(withContent bool) *mapBuilder {
	return &mapBuilder{withContent: withContent}
}

// skip advances over generated lines that map to nothing.
func (m *mapBuilder) skip(lines int) {
	for i := 0; i < lines; i++ {
		m.mappings = append(m.mappings, ';')
		m.line++
	}
}

// module maps the next generatedLines lines to source. The generated text
// is the transformed module, so lines past the end of the source clamp to
// its last line.
func (m *mapBuilder) module(source string, content []byte, generatedLines int) {
	idx := len(m.sources)
	m.sources = append(m.sources, source)
	if m.withContent {
		m.contents = append(m.contents, string(content))
	}
	srcLines := bytes.Count(content, []byte("\n")) + 1
	for i := 0; i < generatedLines; i++ {
		srcLine := i
		if srcLine >= srcLines {
			srcLine = srcLines - 1
		}
		m.mappings = appendVLQ(m.mappings, 0)
		m.mappings = appendVLQ(m.mappings, idx-m.prevSource)
		m.mappings = appendVLQ(m.mappings, srcLine-m.prevLine)
		m.mappings = appendVLQ(m.mappings, 0)
		m.mappings = append(m.mappings, ';')
		m.prevSource, m.prevLine = idx, srcLine
		m.line++
	}
}

func (m *mapBuilder) build(file string) ([]byte, error) {
	sm := sourceMap{
		Version:        3,
		File:           file,
		Sources:        m.sources,
		SourcesContent: m.contents,
		Names:          []string{},
		Mappings:       string(bytes.TrimRight(m.mappings, ";")),
	}
	if sm.Sources == nil {
		sm.Sources = []string{}
	}
	return json.Marshal(sm)
}

// setMapFile rewrites the file field of an encoded map.
func setMapFile(data []byte, file string) ([]byte, error) {
	var sm sourceMap
	if err := json.Unmarshal(data, &sm); err != nil {
		return nil, err
	}
	sm.File = file
	if sm.Names == nil {
		sm.Names = []string{}
	}
	return json.Marshal(sm)
}

// inlineMapComment embeds a source map as a data URI.
func inlineMapComment(data []byte) string {
	return "//# sourceMappingURL=data:application/json;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(data) + "\n"
}
