package graph

import (
	"regexp"
	"strings"
)

// SFC is a single-file component split into its blocks.
type SFC struct {
	Script       string
	ScriptLine   int
	Template     string
	TemplateLine int
	Styles       []StyleBlock
}

// StyleBlock is one <style> block of a component.
type StyleBlock struct {
	Content string
	Lang    string
	Scoped  bool
	Line    int
}

var (
	scriptBlock   = regexp.MustCompile(`(?s)<script([^>]*)>(.*?)</script>`)
	templateBlock = regexp.MustCompile(`(?s)<template([^>]*)>(.*)</template>`)
	styleBlock    = regexp.MustCompile(`(?s)<style([^>]*)>(.*?)</style>`)
	langAttr      = regexp.MustCompile(`\blang\s*=\s*["']([\w-]+)["']`)
	scopedAttr    = regexp.MustCompile(`\bscoped\b`)
)

// ParseSFC extracts the script, template and style blocks. Line numbers are
// 1-based and point at the first line of each block's content.
func ParseSFC(src []byte) SFC {
	s := string(src)
	var sfc SFC

	if m := scriptBlock.FindStringSubmatchIndex(s); m != nil {
		sfc.Script = s[m[4]:m[5]]
		sfc.ScriptLine = lineAt(s, m[4])
	}
	if m := templateBlock.FindStringSubmatchIndex(s); m != nil {
		sfc.Template = strings.TrimSpace(s[m[4]:m[5]])
		sfc.TemplateLine = lineAt(s, m[4])
	}
	for _, m := range styleBlock.FindAllStringSubmatchIndex(s, -1) {
		attrs := s[m[2]:m[3]]
		block := StyleBlock{
			Content: s[m[4]:m[5]],
			Lang:    "css",
			Scoped:  scopedAttr.MatchString(attrs),
			Line:    lineAt(s, m[4]),
		}
		if lm := langAttr.FindStringSubmatch(attrs); lm != nil {
			block.Lang = lm[1]
		}
		sfc.Styles = append(sfc.Styles, block)
	}
	return sfc
}

func lineAt(s string, offset int) int {
	return strings.Count(s[:offset], "\n") + 1
}
