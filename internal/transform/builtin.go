package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/conneroisu/bundlr/internal/config"
	"github.com/conneroisu/bundlr/internal/errors"
)

const builtinVersion = "1"

// DefineStage substitutes compile-time constants such as
// process.env.NODE_ENV with their configured expressions.
func DefineStage(defines map[string]string) Stage {
	names := make([]string, 0, len(defines))
	for name := range defines {
		names = append(names, name)
	}
	// Longer names first so "process.env.NODE_ENV" wins over "process.env".
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	return Stage{
		Name:    "define",
		Version: builtinVersion,
		Options: Options(defines),
		Run: func(ctx context.Context, src []byte, meta Meta, opts Options) (Result, error) {
			out := src
			for _, name := range names {
				out = replaceIdentifier(out, name, opts[name])
			}
			return Result{Output: out}, nil
		},
	}
}

// replaceIdentifier replaces whole-identifier occurrences of name. A match
// preceded by "." or an identifier character is part of a longer expression
// and left alone.
func replaceIdentifier(src []byte, name, value string) []byte {
	needle := []byte(name)
	if !bytes.Contains(src, needle) {
		return src
	}
	var out bytes.Buffer
	for {
		i := bytes.Index(src, needle)
		if i < 0 {
			out.Write(src)
			return out.Bytes()
		}
		end := i + len(needle)
		before := i == 0 || !isIdentByte(src[i-1]) && src[i-1] != '.'
		after := end == len(src) || !isIdentByte(src[end])
		out.Write(src[:i])
		if before && after {
			out.WriteString(value)
		} else {
			out.Write(needle)
		}
		src = src[end:]
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// JSONStage validates a JSON document and wraps it as a module export.
func JSONStage() Stage {
	return Stage{
		Name:    "json",
		Version: builtinVersion,
		Run: func(ctx context.Context, src []byte, meta Meta, opts Options) (Result, error) {
			var compact bytes.Buffer
			if err := json.Compact(&compact, src); err != nil {
				te := &errors.TransformError{Module: meta.ID, Stage: "json", Cause: err}
				if se, ok := err.(*json.SyntaxError); ok {
					te.Line = bytes.Count(src[:se.Offset], []byte("\n")) + 1
				}
				return Result{}, te
			}
			out := make([]byte, 0, compact.Len()+24)
			out = append(out, "module.exports = "...)
			out = append(out, compact.Bytes()...)
			out = append(out, ";\n"...)
			return Result{Output: out}, nil
		},
	}
}

var cssImportRule = regexp.MustCompile(`(?m)^[ \t]*@import[^;]*;[ \t]*\n?`)

// CSSStage checks stylesheet syntax balance and drops @import rules, whose
// targets are separate graph modules.
func CSSStage() Stage {
	return Stage{
		Name:    "css",
		Version: builtinVersion,
		Run: func(ctx context.Context, src []byte, meta Meta, opts Options) (Result, error) {
			if line, msg := checkCSS(src); msg != "" {
				return Result{}, &errors.TransformError{
					Module: meta.ID,
					Stage:  "css",
					Line:   line,
					Cause:  fmt.Errorf("%s", msg),
				}
			}
			return Result{Output: cssImportRule.ReplaceAll(src, nil)}, nil
		},
	}
}

// checkCSS returns the line and description of the first balance error.
func checkCSS(src []byte) (int, string) {
	line := 1
	var opened []int
	var quote byte
	quoteLine := 0
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == '\n' {
			line++
		}
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			} else if c == '\n' {
				return quoteLine, "unterminated string"
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			start := line
			end := bytes.Index(src[i+2:], []byte("*/"))
			if end < 0 {
				return start, "unterminated comment"
			}
			line += bytes.Count(src[i+2:i+2+end], []byte("\n"))
			i += end + 3
		case c == '"' || c == '\'':
			quote = c
			quoteLine = line
		case c == '{':
			opened = append(opened, line)
		case c == '}':
			if len(opened) == 0 {
				return line, "unexpected }"
			}
			opened = opened[:len(opened)-1]
		}
	}
	if quote != 0 {
		return quoteLine, "unterminated string"
	}
	if len(opened) > 0 {
		return opened[len(opened)-1], "unclosed {"
	}
	return 0, ""
}

var (
	debuggerStmt = regexp.MustCompile(`\bdebugger\b`)
	consoleLog   = regexp.MustCompile(`\bconsole\.log\s*\(`)
)

// LintStage reports debugger statements and console.log calls. A debugger
// statement is an error in production builds and a warning otherwise.
func LintStage() Stage {
	return Stage{
		Name:    "lint",
		Version: builtinVersion,
		Run: func(ctx context.Context, src []byte, meta Meta, opts Options) (Result, error) {
			var diags []errors.LintDiagnostic
			for i, line := range strings.Split(string(src), "\n") {
				trimmed := strings.TrimSpace(line)
				if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "*") {
					continue
				}
				if debuggerStmt.MatchString(line) {
					severity := errors.SeverityWarning
					if meta.Mode == config.ModeProduction {
						severity = errors.SeverityError
					}
					diags = append(diags, errors.LintDiagnostic{
						Module: meta.ID, Stage: "lint", Line: i + 1,
						Rule: "no-debugger", Message: "unexpected debugger statement", Severity: severity,
					})
				}
				if consoleLog.MatchString(line) {
					diags = append(diags, errors.LintDiagnostic{
						Module: meta.ID, Stage: "lint", Line: i + 1,
						Rule: "no-console", Message: "unexpected console.log call", Severity: errors.SeverityWarning,
					})
				}
			}
			return Result{Output: src, Diagnostics: diags}, nil
		},
	}
}
