package types

import "time"

// AIConfig holds settings for the AI publisher normalizer.
type AIConfig struct {
	// Enabled turns on the AI fallback for publishers no rule matches.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// PromptFile is an optional path to a custom prompt template.
	PromptFile string `json:"prompt_file,omitempty" yaml:"prompt_file,omitempty"`

	// Timeout bounds a single normalization call (default 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries is the number of retry attempts on rate limiting (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// ExtractionConfig holds settings for the extraction worker pool.
type ExtractionConfig struct {
	// Workers is the number of concurrent extraction workers (default NumCPU).
	Workers int `json:"workers" yaml:"workers"`

	// ForceReload treats every cached entry as stale.
	ForceReload bool `json:"force_reload" yaml:"force_reload"`
}

// NormalizeConfig holds settings for publisher resolution.
type NormalizeConfig struct {
	AI AIConfig `json:"ai" yaml:"ai"`

	// RulesFile is the path to the CSV rule table.
	RulesFile string `json:"rules_file" yaml:"rules_file"`

	// RulesRequired makes a missing RulesFile fatal. It is set when the user
	// names the file explicitly.
	RulesRequired bool `json:"rules_required" yaml:"rules_required"`

	// StrictRules makes malformed rule rows fatal instead of skipped.
	StrictRules bool `json:"strict_rules" yaml:"strict_rules"`

	// Fallback is the canonical name for blank and unresolved publishers
	// (default "Unknown Publisher").
	Fallback string `json:"fallback" yaml:"fallback"`

	// KeepRaw uses the raw publisher string instead of Fallback for
	// non-blank publishers that stay unresolved.
	KeepRaw bool `json:"keep_raw" yaml:"keep_raw"`

	// ForceNormalize ignores cached resolutions.
	ForceNormalize bool `json:"force_normalize" yaml:"force_normalize"`

	// Workers bounds concurrent resolutions (default NumCPU).
	Workers int `json:"workers" yaml:"workers"`
}

// LinkStyle selects how symlink targets are written.
type LinkStyle string

const (
	LinkRelative LinkStyle = "relative"
	LinkAbsolute LinkStyle = "absolute"
)

// LinkConfig holds settings for the symlink tree materializer.
type LinkConfig struct {
	// LibraryDir is the root holding by_title/ and by_publisher/.
	LibraryDir string `json:"library_dir" yaml:"library_dir"`

	// Style selects relative (default) or absolute link targets.
	Style LinkStyle `json:"style" yaml:"style"`

	// DryRun computes every change without applying any.
	DryRun bool `json:"dry_run" yaml:"dry_run"`
}

// RunConfig groups all settings for one pipeline run.
type RunConfig struct {
	// InputDir is the directory tree scanned for documents.
	InputDir string `json:"input_dir" yaml:"input_dir"`

	// CacheDir holds the metadata and normalization caches (default ".libshelf").
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// ReportPath is where the JSON report is written (default "library_report.json").
	ReportPath string `json:"report_path" yaml:"report_path"`

	// GracePeriod bounds how long in-flight work may finish after an
	// interrupt before caches are flushed anyway (default 5s).
	GracePeriod time.Duration `json:"grace_period" yaml:"grace_period"`

	Extraction ExtractionConfig `json:"extraction" yaml:"extraction"`
	Normalize  NormalizeConfig  `json:"normalize" yaml:"normalize"`
	Links      LinkConfig       `json:"links" yaml:"links"`
}
