// Package config provides configuration management for bundlr using Viper
// for loading from files, environment variables, and command-line flags.
//
// A Config is an immutable snapshot for one orchestrator run. Load applies
// defaults (which depend on the build mode), validates the result, compiles
// chunk-group patterns and turns every path absolute. Nothing mutates a
// Config after Load returns; use Clone to derive a variant.
package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"
)

// Mode selects between one-shot production builds and watch-mode development.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// SourceMapPolicy controls source map generation.
type SourceMapPolicy string

const (
	SourceMapNone   SourceMapPolicy = "none"
	SourceMapFile   SourceMapPolicy = "source-map"
	SourceMapInline SourceMapPolicy = "inline-source-map"
	SourceMapCheap  SourceMapPolicy = "cheap-module-source-map"
)

// Scope restricts a chunk-group rule to modules reached without an async
// boundary ("initial") or to any module ("all").
type Scope string

const (
	ScopeInitial Scope = "initial"
	ScopeAll     Scope = "all"
)

// MatchKind says how a rule's Test is compared to a module path.
type MatchKind string

const (
	MatchPrefix  MatchKind = "prefix"
	MatchPattern MatchKind = "pattern"
	MatchGlob    MatchKind = "glob"
)

type Config struct {
	Mode        Mode              `mapstructure:"mode" yaml:"mode"`
	Root        string            `mapstructure:"root" yaml:"root"`
	Entries     map[string]string `mapstructure:"entries" yaml:"entries"`
	PublicDir   string            `mapstructure:"public_dir" yaml:"public_dir"`
	Template    string            `mapstructure:"template" yaml:"template"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output"`
	Resolve     ResolveConfig     `mapstructure:"resolve" yaml:"resolve"`
	Assets      AssetConfig       `mapstructure:"assets" yaml:"assets"`
	ChunkGroups []ChunkGroupRule  `mapstructure:"chunk_groups" yaml:"chunk_groups"`
	Loaders     []LoaderRule      `mapstructure:"loaders" yaml:"loaders"`
	Stages      []StageConfig     `mapstructure:"stages" yaml:"stages"`
	// Define holds NAME=VALUE pairs; a list keeps names case-sensitive
	// where a viper map would lowercase them.
	Define    []string        `mapstructure:"define" yaml:"define"`
	Minify    *bool           `mapstructure:"minify" yaml:"minify"`
	SourceMap SourceMapPolicy `mapstructure:"source_map" yaml:"source_map"`
	LintFatal bool            `mapstructure:"lint_fatal" yaml:"lint_fatal"`
	Workers   int             `mapstructure:"workers" yaml:"workers"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
}

type OutputConfig struct {
	Dir              string `mapstructure:"dir" yaml:"dir"`
	PublicPath       string `mapstructure:"public_path" yaml:"public_path"`
	Filename         string `mapstructure:"filename" yaml:"filename"`
	ChunkFilename    string `mapstructure:"chunk_filename" yaml:"chunk_filename"`
	AssetFilename    string `mapstructure:"asset_filename" yaml:"asset_filename"`
	CSSFilename      string `mapstructure:"css_filename" yaml:"css_filename"`
	CSSChunkFilename string `mapstructure:"css_chunk_filename" yaml:"css_chunk_filename"`
	Clean            *bool  `mapstructure:"clean" yaml:"clean"`
}

type ResolveConfig struct {
	Extensions []string          `mapstructure:"extensions" yaml:"extensions"`
	Alias      map[string]string `mapstructure:"alias" yaml:"alias"`
}

type AssetConfig struct {
	// InlineLimit is the largest image size, in bytes, that is inlined as a
	// data URI. Zero turns inlining off.
	InlineLimit *int64 `mapstructure:"inline_limit" yaml:"inline_limit"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	HistoryFallback *bool         `mapstructure:"history_fallback" yaml:"history_fallback"`
	Open            bool          `mapstructure:"open" yaml:"open"`
	Debounce        time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Ignore          []string      `mapstructure:"ignore" yaml:"ignore"`
}

// ChunkGroupRule is one named cache group: plain data evaluated against
// module paths by the chunk splitter.
type ChunkGroupRule struct {
	Name     string    `mapstructure:"name" yaml:"name"`
	Test     string    `mapstructure:"test" yaml:"test"`
	Match    MatchKind `mapstructure:"match" yaml:"match"`
	Priority int       `mapstructure:"priority" yaml:"priority"`
	Chunks   Scope     `mapstructure:"chunks" yaml:"chunks"`

	re *regexp.Regexp
}

// LoaderRule maps file extensions to an ordered list of stage names.
type LoaderRule struct {
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	Stages     []string `mapstructure:"stages" yaml:"stages"`
}

// StageConfig declares an external-command stage.
type StageConfig struct {
	Name    string            `mapstructure:"name" yaml:"name"`
	Command []string          `mapstructure:"command" yaml:"command"`
	Version string            `mapstructure:"version" yaml:"version"`
	Options map[string]string `mapstructure:"options" yaml:"options"`
}

// Load reads the global viper instance into a validated Config.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads v into a validated Config.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration for a project rooted at root with a
// single "main" entry, already finalized.
func Default(root string, mode Mode) (*Config, error) {
	cfg := &Config{Mode: mode, Root: root}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize applies defaults, validates, makes paths absolute and compiles
// chunk-group rules. It is called once, before the Config is shared.
func (c *Config) Finalize() error {
	applyDefaults(c)
	if err := validateConfig(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.absolutize(); err != nil {
		return err
	}
	for i := range c.ChunkGroups {
		if err := c.ChunkGroups[i].compile(c.Root); err != nil {
			return fmt.Errorf("invalid configuration: chunk_groups[%d]: %w", i, err)
		}
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.Mode == "" {
		c.Mode = ModeDevelopment
	}
	prod := c.Mode == ModeProduction

	if c.Root == "" {
		c.Root = "."
	}
	if len(c.Entries) == 0 {
		c.Entries = map[string]string{"main": "./src/main.js"}
	}
	if c.PublicDir == "" {
		c.PublicDir = "public"
	}
	if c.Template == "" {
		c.Template = filepath.Join(c.PublicDir, "index.html")
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "dist"
	}
	if c.Output.PublicPath == "" {
		c.Output.PublicPath = "/"
	}
	if c.Output.Filename == "" {
		c.Output.Filename = pick(prod, "static/js/[name].[contenthash:10].js", "static/js/[name].js")
	}
	if c.Output.ChunkFilename == "" {
		c.Output.ChunkFilename = pick(prod, "static/js/[name].[contenthash].chunk.js", "static/js/[name].chunk.js")
	}
	if c.Output.AssetFilename == "" {
		c.Output.AssetFilename = "static/media/[hash:10][ext][query]"
	}
	if c.Output.CSSFilename == "" {
		c.Output.CSSFilename = pick(prod, "static/css/[name].[contenthash:10].css", "static/css/[name].css")
	}
	if c.Output.CSSChunkFilename == "" {
		c.Output.CSSChunkFilename = pick(prod, "static/css/[name].[contenthash:10].chunk.css", "static/css/[name].chunk.css")
	}
	if c.Output.Clean == nil {
		c.Output.Clean = boolPtr(prod)
	}

	if len(c.Resolve.Extensions) == 0 {
		c.Resolve.Extensions = []string{".vue", ".js", ".json"}
	}
	if c.Resolve.Alias == nil {
		c.Resolve.Alias = map[string]string{"@": "src"}
	}

	if c.Assets.InlineLimit == nil {
		limit := int64(10 * 1024)
		c.Assets.InlineLimit = &limit
	}

	if c.ChunkGroups == nil {
		c.ChunkGroups = DefaultChunkGroups()
	}
	for i := range c.ChunkGroups {
		if c.ChunkGroups[i].Chunks == "" {
			c.ChunkGroups[i].Chunks = ScopeAll
		}
		if c.ChunkGroups[i].Match == "" {
			c.ChunkGroups[i].Match = MatchPrefix
		}
	}

	if len(c.Loaders) == 0 {
		c.Loaders = DefaultLoaders()
	}
	if len(c.Stages) == 0 {
		c.Stages = DefaultStages()
	}

	if c.Define == nil {
		c.Define = []string{
			"__VUE_OPTIONS_API__=true",
			"__VUE_PROD_DEVTOOLS__=false",
		}
	}
	if c.Minify == nil {
		c.Minify = boolPtr(prod)
	}
	if c.SourceMap == "" {
		c.SourceMap = SourceMapPolicy(pick(prod, string(SourceMapFile), string(SourceMapCheap)))
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}

	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3001
	}
	if c.Server.HistoryFallback == nil {
		c.Server.HistoryFallback = boolPtr(true)
	}
	if c.Server.Debounce == 0 {
		c.Server.Debounce = 100 * time.Millisecond
	}
	if c.Server.Ignore == nil {
		c.Server.Ignore = []string{"**/node_modules/**", "**/.git/**", "**/*~", "**/.#*"}
	}
}

// DefaultChunkGroups mirrors the cache groups of the production setup this
// tool replaces: layouts, a UI library, the framework core and all other
// dependencies, in descending priority.
func DefaultChunkGroups() []ChunkGroupRule {
	return []ChunkGroupRule{
		{Name: "layouts", Test: "src/layouts", Match: MatchPrefix, Priority: 40, Chunks: ScopeAll},
		{Name: "chunk-elementPlus", Test: `[\\/]node_modules[\\/]_?element-plus(.*)`, Match: MatchPattern, Priority: 30, Chunks: ScopeAll},
		{Name: "vue", Test: `[\\/]node_modules[\\/]vue(.*)[\\/]`, Match: MatchPattern, Priority: 20, Chunks: ScopeInitial},
		{Name: "chunk-libs", Test: `[\\/]node_modules[\\/]`, Match: MatchPattern, Priority: 10, Chunks: ScopeInitial},
	}
}

// DefaultLoaders returns the extension to stage-chain table. Style chains
// are declared outermost first and run in reverse.
func DefaultLoaders() []LoaderRule {
	return []LoaderRule{
		{Extensions: []string{".js", ".mjs", ".cjs"}, Stages: []string{"lint", "define", "esm"}},
		{Extensions: []string{".vue"}, Stages: []string{"sfc", "define", "esm"}},
		{Extensions: []string{".json"}, Stages: []string{"json"}},
		{Extensions: []string{".css"}, Stages: []string{"css"}},
		{Extensions: []string{".less"}, Stages: []string{"css", "less"}},
		{Extensions: []string{".scss", ".sass"}, Stages: []string{"css", "sass"}},
	}
}

// DefaultStages declares the preprocessors that run as external commands.
func DefaultStages() []StageConfig {
	return []StageConfig{
		{Name: "less", Command: []string{"lessc", "-"}},
		{Name: "sass", Command: []string{"sass", "--stdin"}},
	}
}

func (c *Config) absolutize() error {
	root, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve root %s: %w", c.Root, err)
	}
	c.Root = root

	c.PublicDir = c.abs(c.PublicDir)
	c.Template = c.abs(c.Template)
	c.Output.Dir = c.abs(c.Output.Dir)

	alias := make(map[string]string, len(c.Resolve.Alias))
	for k, v := range c.Resolve.Alias {
		alias[k] = c.abs(v)
	}
	c.Resolve.Alias = alias
	return nil
}

func (c *Config) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Root, p)
}

// IsProduction reports whether the run is a production build.
func (c *Config) IsProduction() bool {
	return c.Mode == ModeProduction
}

// ShouldMinify reports the effective minification toggle.
func (c *Config) ShouldMinify() bool {
	return c.Minify != nil && *c.Minify
}

// InlineLimit reports the effective inline threshold in bytes.
func (c *Config) InlineLimit() int64 {
	if c.Assets.InlineLimit == nil {
		return 0
	}
	return *c.Assets.InlineLimit
}

// ShouldClean reports whether the output directory is emptied before emission.
func (c *Config) ShouldClean() bool {
	return c.Output.Clean != nil && *c.Output.Clean
}

// HistoryFallback reports whether unmatched dev server paths get the root document.
func (c *Config) HistoryFallback() bool {
	return c.Server.HistoryFallback == nil || *c.Server.HistoryFallback
}

// ServerURL is the address the dev server is reachable at.
func (c *Config) ServerURL() string {
	return fmt.Sprintf("http://%s:%d%s", c.Server.Host, c.Server.Port, pick(strings.HasPrefix(c.Output.PublicPath, "/"), c.Output.PublicPath, "/"))
}

// EntryNames returns the entry names in sorted order.
func (c *Config) EntryNames() []string {
	names := make([]string, 0, len(c.Entries))
	for name := range c.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Defines parses the define table. Later duplicates win.
func (c *Config) Defines() map[string]string {
	defines := make(map[string]string, len(c.Define)+1)
	defines["process.env.NODE_ENV"] = fmt.Sprintf("%q", string(c.Mode))
	for _, pair := range c.Define {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		defines[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return defines
}

// Stage looks up an external stage declaration by name.
func (c *Config) Stage(name string) (StageConfig, bool) {
	for _, s := range c.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageConfig{}, false
}

// Clone returns a deep copy. The copy shares compiled rule patterns, which
// are immutable.
func (c *Config) Clone() *Config {
	out := *c
	out.Entries = cloneMap(c.Entries)
	out.Resolve.Alias = cloneMap(c.Resolve.Alias)
	out.Resolve.Extensions = append([]string(nil), c.Resolve.Extensions...)
	out.ChunkGroups = append([]ChunkGroupRule(nil), c.ChunkGroups...)
	out.Loaders = make([]LoaderRule, len(c.Loaders))
	for i, l := range c.Loaders {
		out.Loaders[i] = LoaderRule{
			Extensions: append([]string(nil), l.Extensions...),
			Stages:     append([]string(nil), l.Stages...),
		}
	}
	out.Stages = make([]StageConfig, len(c.Stages))
	for i, s := range c.Stages {
		out.Stages[i] = StageConfig{
			Name:    s.Name,
			Command: append([]string(nil), s.Command...),
			Version: s.Version,
			Options: cloneMap(s.Options),
		}
	}
	out.Define = append([]string(nil), c.Define...)
	out.Server.Ignore = append([]string(nil), c.Server.Ignore...)
	return &out
}

func (r *ChunkGroupRule) compile(root string) error {
	switch r.Match {
	case MatchPrefix:
		if !filepath.IsAbs(r.Test) {
			r.Test = filepath.Join(root, r.Test)
		}
		r.Test = filepath.ToSlash(filepath.Clean(r.Test))
	case MatchPattern:
		re, err := regexp.Compile(r.Test)
		if err != nil {
			return fmt.Errorf("rule %s: bad pattern: %w", r.Name, err)
		}
		r.re = re
	case MatchGlob:
		if !filepath.IsAbs(r.Test) && !strings.HasPrefix(r.Test, "**") {
			r.Test = filepath.ToSlash(filepath.Join(root, r.Test))
		}
		if !doublestar.ValidatePattern(r.Test) {
			return fmt.Errorf("rule %s: bad glob %q", r.Name, r.Test)
		}
	}
	return nil
}

// Matches reports whether the rule's test accepts the absolute module path.
func (r *ChunkGroupRule) Matches(path string) bool {
	p := filepath.ToSlash(path)
	switch r.Match {
	case MatchPrefix:
		return p == r.Test || strings.HasPrefix(p, strings.TrimSuffix(r.Test, "/")+"/")
	case MatchPattern:
		if r.re == nil {
			return false
		}
		return r.re.MatchString(p)
	case MatchGlob:
		ok, _ := doublestar.Match(r.Test, p)
		return ok
	}
	return false
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

func boolPtr(b bool) *bool {
	return &b
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
