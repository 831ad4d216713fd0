package config

import (
	"fmt"
	"strings"

	"github.com/conneroisu/bundlr/internal/errors"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Errors []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

func (vr *ValidationResult) add(field string, value interface{}, message string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{
		Field:       field,
		Value:       value,
		Message:     message,
		Suggestions: suggestions,
	})
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder
	for _, err := range vr.Errors {
		builder.WriteString(fmt.Sprintf("  • %s: %s\n", err.Field, err.Message))
		for _, suggestion := range err.Suggestions {
			builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
		}
	}
	return builder.String()
}

// Validate runs every check and returns the detailed result.
func Validate(c *Config) *ValidationResult {
	result := &ValidationResult{}

	switch c.Mode {
	case ModeDevelopment, ModeProduction:
	default:
		result.add("mode", c.Mode, "must be development or production")
	}

	for name, entry := range c.Entries {
		if strings.TrimSpace(name) == "" {
			result.add("entries", name, "entry name cannot be empty")
		}
		if strings.Contains(name, "~") {
			result.add("entries."+name, name, "entry name cannot contain ~",
				"~ separates the entries of runtime and shared chunk names")
		}
		if strings.TrimSpace(entry) == "" {
			result.add("entries."+name, entry, "entry path cannot be empty")
		}
	}

	validateOutput(&c.Output, result)

	for i, ext := range c.Resolve.Extensions {
		if !strings.HasPrefix(ext, ".") {
			result.add(fmt.Sprintf("resolve.extensions[%d]", i), ext, "extension must start with a dot")
		}
	}

	if c.InlineLimit() < 0 {
		result.add("assets.inline_limit", c.InlineLimit(), "cannot be negative")
	}

	seen := make(map[string]bool)
	for i, rule := range c.ChunkGroups {
		field := fmt.Sprintf("chunk_groups[%d]", i)
		if rule.Name == "" {
			result.add(field+".name", rule.Name, "rule name is required")
		}
		if seen[rule.Name] {
			result.add(field+".name", rule.Name, "duplicate rule name")
		}
		if _, ok := c.Entries[rule.Name]; ok {
			result.add(field+".name", rule.Name, "rule name is also an entry name")
		}
		if strings.Contains(rule.Name, "~") {
			result.add(field+".name", rule.Name, "rule name cannot contain ~")
		}
		seen[rule.Name] = true
		if rule.Test == "" {
			result.add(field+".test", rule.Test, "rule test is required")
		}
		switch rule.Match {
		case MatchPrefix, MatchPattern, MatchGlob:
		default:
			result.add(field+".match", rule.Match, "must be prefix, pattern or glob")
		}
		switch rule.Chunks {
		case ScopeInitial, ScopeAll:
		default:
			result.add(field+".chunks", rule.Chunks, "must be initial or all")
		}
	}

	for i, loader := range c.Loaders {
		if len(loader.Extensions) == 0 {
			result.add(fmt.Sprintf("loaders[%d].extensions", i), nil, "at least one extension is required")
		}
	}

	for i, stage := range c.Stages {
		if stage.Name == "" {
			result.add(fmt.Sprintf("stages[%d].name", i), stage.Name, "stage name is required")
		}
		if len(stage.Command) == 0 {
			result.add(fmt.Sprintf("stages[%d].command", i), nil, "command is required",
				`e.g. command: ["lessc", "-"]`)
		}
	}

	switch c.SourceMap {
	case SourceMapNone, SourceMapFile, SourceMapInline, SourceMapCheap:
	default:
		result.add("source_map", c.SourceMap, "unknown source map policy",
			"use none, source-map, inline-source-map or cheap-module-source-map")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		result.add("server.port", c.Server.Port, "port must be between 0 and 65535")
	}
	if c.Server.Debounce < 0 {
		result.add("server.debounce", c.Server.Debounce, "cannot be negative")
	}

	return result
}

func validateOutput(o *OutputConfig, result *ValidationResult) {
	for field, tmpl := range map[string]string{
		"output.filename":           o.Filename,
		"output.chunk_filename":     o.ChunkFilename,
		"output.css_filename":       o.CSSFilename,
		"output.css_chunk_filename": o.CSSChunkFilename,
	} {
		if !strings.Contains(tmpl, "[name]") {
			result.add(field, tmpl, "template must contain [name]")
		}
	}
	if !strings.Contains(o.AssetFilename, "[hash") && !strings.Contains(o.AssetFilename, "[name]") {
		result.add("output.asset_filename", o.AssetFilename, "template must contain [hash] or [name]")
	}
	if !strings.HasSuffix(o.PublicPath, "/") {
		result.add("output.public_path", o.PublicPath, "public path must end with /")
	}
}

func validateConfig(c *Config) error {
	result := Validate(c)
	if !result.HasErrors() {
		return nil
	}
	first := result.Errors[0]
	return errors.NewConfigError(errors.ErrCodeConfigInvalid,
		fmt.Sprintf("%d problem(s), first: %s", len(result.Errors), first.Error())).
		WithContext("details", result.String())
}
