package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration options for sqeffect.
type Config struct {
	// SonarCloud endpoints and API paging
	Sonar SonarConfig `koanf:"sonar" toml:"sonar"`

	// Headless browser used for the activity pages
	Render RenderConfig `koanf:"render" toml:"render"`

	// Collection run settings
	Collect CollectConfig `koanf:"collect" toml:"collect"`

	// Adoption-window filter settings
	Filter FilterConfig `koanf:"filter" toml:"filter"`

	// Output settings
	Output OutputConfig `koanf:"output" toml:"output"`

	// Projects under study
	Projects []ProjectConfig `koanf:"projects" toml:"projects"`
}

// SonarConfig describes the analysis-history API and the web UI.
type SonarConfig struct {
	APIBaseURL       string `koanf:"api_base_url" toml:"api_base_url"`
	WebBaseURL       string `koanf:"web_base_url" toml:"web_base_url"`
	PageSize         int    `koanf:"page_size" toml:"page_size"`
	PageDelaySeconds int    `koanf:"page_delay_seconds" toml:"page_delay_seconds"`
	PageRetries      int    `koanf:"page_retries" toml:"page_retries"`
	TimeoutSeconds   int    `koanf:"timeout_seconds" toml:"timeout_seconds"`
	UserAgent        string `koanf:"user_agent" toml:"user_agent"`
}

// RenderConfig controls the rendering client.
type RenderConfig struct {
	SettleSeconds int      `koanf:"settle_seconds" toml:"settle_seconds"`
	Headless      bool     `koanf:"headless" toml:"headless"`
	ExecPath      string   `koanf:"exec_path" toml:"exec_path"`
	Graphs        []string `koanf:"graphs" toml:"graphs"` // coverage, duplications
}

// CollectConfig controls a collection run.
type CollectConfig struct {
	Workers       int    `koanf:"workers" toml:"workers"`
	CacheEnabled  bool   `koanf:"cache_enabled" toml:"cache_enabled"`
	CacheDir      string `koanf:"cache_dir" toml:"cache_dir"`
	CacheTTLHours int    `koanf:"cache_ttl_hours" toml:"cache_ttl_hours"`
	HistoryDB     string `koanf:"history_db" toml:"history_db"` // relative to the output dir
}

// FilterConfig controls the adoption-window filter and the commit miner.
type FilterConfig struct {
	MentionPattern string `koanf:"mention_pattern" toml:"mention_pattern"`
	CloneDir       string `koanf:"clone_dir" toml:"clone_dir"`
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format  string `koanf:"format" toml:"format"` // text, json, markdown, toon
	Color   bool   `koanf:"color" toml:"color"`
	Verbose bool   `koanf:"verbose" toml:"verbose"`
}

// Issue tracker kinds.
const (
	TrackerJira     = "jira"
	TrackerBugzilla = "bugzilla"
)

// ProjectConfig maps a project name to its SonarCloud id and issue tracker.
type ProjectConfig struct {
	Name       string `koanf:"name" toml:"name"`
	SonarID    string `koanf:"sonar_id" toml:"sonar_id"`
	Tracker    string `koanf:"tracker" toml:"tracker"`
	TrackerKey string `koanf:"tracker_key" toml:"tracker_key"`
}

// Graphs supported by the activity page besides the issues graph.
var knownGraphs = map[string]bool{"coverage": true, "duplications": true}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Sonar: SonarConfig{
			APIBaseURL:       "https://sonarcloud.io/api",
			WebBaseURL:       "https://sonarcloud.io",
			PageSize:         500,
			PageDelaySeconds: 2,
			PageRetries:      2,
			TimeoutSeconds:   30,
			UserAgent:        "sqeffect",
		},
		Render: RenderConfig{
			SettleSeconds: 3,
			Headless:      true,
		},
		Collect: CollectConfig{
			Workers:       1,
			CacheEnabled:  true,
			CacheDir:      ".sqeffect/cache",
			CacheTTLHours: 24,
			HistoryDB:     "history.db",
		},
		Filter: FilterConfig{
			MentionPattern: "sonar",
			CloneDir:       "case_systems",
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
		Projects: DefaultProjects(),
	}
}

// DefaultProjects returns the Apache projects of the reference study.
func DefaultProjects() []ProjectConfig {
	jira := func(name, sonarID, key string) ProjectConfig {
		return ProjectConfig{Name: name, SonarID: sonarID, Tracker: TrackerJira, TrackerKey: key}
	}
	bugzilla := func(name, sonarID, key string) ProjectConfig {
		return ProjectConfig{Name: name, SonarID: sonarID, Tracker: TrackerBugzilla, TrackerKey: key}
	}
	return []ProjectConfig{
		bugzilla("ant", "ant-master", "Ant"),
		jira("cxf", "cxf", "CXF"),
		jira("daffodil", "apache-daffodil", "DAFFODIL"),
		jira("gora", "apache_gora", "GORA"),
		jira("groovy", "apache_groovy", "GROOVY"),
		jira("hadoop-ozone", "hadoop-ozone", "HDDS"),
		jira("iotdb", "apache_incubator-iotdb", "IOTDB"),
		jira("isis", "apache_isis", "ISIS"),
		bugzilla("jmeter", "JMeter", "JMeter"),
		jira("jspwiki", "jspwiki-builder", "JSPWIKI"),
		jira("karaf", "apache_karaf", "KARAF"),
		jira("knox", "knox-gateway", "KNOX"),
		jira("openmeetings", "apache_openmeetings", "OPENMEETINGS"),
		jira("pdfbox", "pdfbox-reactor", "PDFBOX"),
		jira("plc4x", "apache_plc4x", "PLC4X"),
		bugzilla("poi", "poi-parent", "POI"),
		jira("ratis", "apache-ratis", "RATIS"),
		jira("roller", "roller-master", "ROL"),
		jira("shiro", "apache_shiro", "SHIRO"),
		jira("struts", "apache_struts", "WW"),
	}
}

// PageDelay is the fixed interval between consecutive API pages.
func (s SonarConfig) PageDelay() time.Duration {
	return time.Duration(s.PageDelaySeconds) * time.Second
}

// Timeout is the per-request HTTP timeout.
func (s SonarConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Settle is how long a rendered page is given to finish client-side drawing.
func (r RenderConfig) Settle() time.Duration {
	return time.Duration(r.SettleSeconds) * time.Second
}

// CacheTTL is the lifetime of a cached API page.
func (c CollectConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// Project returns the project with the given name.
func (c *Config) Project(name string) (ProjectConfig, bool) {
	for _, p := range c.Projects {
		if p.Name == name {
			return p, true
		}
	}
	return ProjectConfig{}, false
}

// MentionRegexp compiles the configured mention pattern case-insensitively.
func (c *Config) MentionRegexp() (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + c.Filter.MentionPattern)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error

	if c.Sonar.APIBaseURL == "" {
		errs = append(errs, errors.New("sonar.api_base_url must not be empty"))
	}
	if c.Sonar.WebBaseURL == "" {
		errs = append(errs, errors.New("sonar.web_base_url must not be empty"))
	}
	if c.Sonar.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("sonar.page_size must be positive (got %d)", c.Sonar.PageSize))
	}
	if c.Sonar.PageDelaySeconds < 0 {
		errs = append(errs, fmt.Errorf("sonar.page_delay_seconds must not be negative (got %d)", c.Sonar.PageDelaySeconds))
	}
	if c.Sonar.PageRetries < 0 {
		errs = append(errs, fmt.Errorf("sonar.page_retries must not be negative (got %d)", c.Sonar.PageRetries))
	}
	if c.Render.SettleSeconds < 0 {
		errs = append(errs, fmt.Errorf("render.settle_seconds must not be negative (got %d)", c.Render.SettleSeconds))
	}
	for _, g := range c.Render.Graphs {
		if !knownGraphs[g] {
			errs = append(errs, fmt.Errorf("render.graphs: unknown graph %q", g))
		}
	}
	if c.Collect.Workers < 1 {
		errs = append(errs, fmt.Errorf("collect.workers must be at least 1 (got %d)", c.Collect.Workers))
	}
	if _, err := c.MentionRegexp(); err != nil {
		errs = append(errs, fmt.Errorf("filter.mention_pattern: %w", err))
	}

	seen := make(map[string]bool, len(c.Projects))
	for i, p := range c.Projects {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("projects[%d]: name must not be empty", i))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("projects[%d]: duplicate project %q", i, p.Name))
		}
		seen[p.Name] = true
		if p.SonarID == "" {
			errs = append(errs, fmt.Errorf("project %s: sonar_id must not be empty", p.Name))
		}
		switch p.Tracker {
		case TrackerJira, TrackerBugzilla:
		default:
			errs = append(errs, fmt.Errorf("project %s: unknown tracker %q", p.Name, p.Tracker))
		}
	}

	return errors.Join(errs...)
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}

	// A configured project list replaces the defaults instead of merging into them.
	if k.Exists("projects") {
		cfg.Projects = nil
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

var configNames = []string{
	"sqeffect.toml",
	"sqeffect.yaml",
	"sqeffect.yml",
	"sqeffect.json",
	".sqeffect.toml",
	".sqeffect.yaml",
	".sqeffect.yml",
	".sqeffect.json",
}

var searchDirs = []string{".", ".sqeffect"}

// findConfig returns the first config file found in the standard locations.
func findConfig() string {
	for _, dir := range searchDirs {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// LoadOrDefault tries to load config from standard locations or returns defaults.
func LoadOrDefault() *Config {
	if path := findConfig(); path != "" {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	return DefaultConfig()
}

// LoadResult is an effective configuration and the file it came from.
// Source is empty when only defaults were used.
type LoadResult struct {
	Config *Config
	Source string
}

type loadOptions struct {
	path string
}

// LoadOption configures LoadConfig.
type LoadOption func(*loadOptions)

// WithPath loads the given file instead of searching the standard locations.
func WithPath(path string) LoadOption {
	return func(o *loadOptions) {
		o.path = path
	}
}

// LoadConfig loads and validates the effective configuration.
func LoadConfig(opts ...LoadOption) (*LoadResult, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	path := o.path
	if path == "" {
		path = findConfig()
	}

	cfg := DefaultConfig()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg = loaded
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &LoadResult{Config: cfg, Source: path}, nil
}
