// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/libshelf/internal/linktree"
	"github.com/pdiddy/libshelf/internal/normalize"
	"github.com/pdiddy/libshelf/internal/pipeline"
	"github.com/pdiddy/libshelf/internal/secrets"
	"github.com/pdiddy/libshelf/pkg/types"
)

var buildCmd = &cobra.Command{
	Use:   "build <dir>",
	Short: "Scan a directory and build the symlink library",
	Long: `Build scans <dir> for PDF and EPUB files, extracts metadata for files
that are new or changed since the last run, resolves publisher names, and
reconciles the library directory:

  <library>/by_title/<title>
  <library>/by_publisher/<publisher>/<title>

Publisher names go through the rules file first (CSV; the first column is
the canonical name, the rest are variants). With --ai, names no rule
matches are sent to Claude and the answers cached. Malformed rule rows are
skipped with a warning unless --strict-rules is set; a variant listed
under two canonical names always aborts the run.

With --dry-run nothing on disk changes: caches are read but not written,
intended link changes are logged, and the report goes to stdout.

Interrupting a run (Ctrl-C) flushes the caches and exits with status 130
without writing the report.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	f := buildCmd.Flags()
	f.IntP("threads", "j", runtime.NumCPU(), "number of concurrent extraction and resolution workers")
	f.String("prompt-file", "", "custom AI prompt template ({{.Publisher}} marks the publisher)")
	f.StringP("output", "o", "library_report.json", "path of the JSON report")
	f.String("rules", "publisher_rules.csv", "publisher rules file")
	f.String("library-dir", "library", "directory holding by_title/ and by_publisher/")
	f.Bool("dry-run", false, "show what would change without touching the filesystem")
	f.Bool("absolute-links", false, "write absolute symlink targets instead of relative ones")
	f.Bool("force-reload", false, "re-extract every file, ignoring the metadata cache")
	f.Bool("force-normalize", false, "re-resolve every publisher, ignoring cached AI answers")
	f.Bool("ai", false, "ask Claude to normalize publishers no rule matches")
	f.String("ai-model", normalize.DefaultModel, "Claude model for publisher normalization")
	f.Duration("ai-timeout", normalize.DefaultTimeout, "timeout for one AI normalization call")
	f.Int("ai-retries", 3, "retries for rate-limited or failed AI calls")
	f.Bool("strict-rules", false, "treat malformed rule rows as fatal")
	f.String("fallback-publisher", normalize.DefaultFallback, "publisher name for blank and unresolved publishers")
	f.Bool("keep-raw-publisher", false, "use the raw publisher string when it cannot be resolved")
	f.Duration("grace-period", pipeline.DefaultGracePeriod, "time in-flight work may finish after an interrupt")

	for key, flag := range map[string]string{
		"threads":            "threads",
		"prompt_file":        "prompt-file",
		"output":             "output",
		"rules":              "rules",
		"library_dir":        "library-dir",
		"dry_run":            "dry-run",
		"absolute_links":     "absolute-links",
		"force_reload":       "force-reload",
		"force_normalize":    "force-normalize",
		"ai.enabled":         "ai",
		"ai.model":           "ai-model",
		"ai.timeout":         "ai-timeout",
		"ai.max_retries":     "ai-retries",
		"strict_rules":       "strict-rules",
		"fallback_publisher": "fallback-publisher",
		"keep_raw_publisher": "keep-raw-publisher",
		"grace_period":       "grace-period",
	} {
		mustBind(key, f.Lookup(flag))
	}

	rootCmd.AddCommand(buildCmd)
}

// runConfig assembles the pipeline configuration from viper.
func runConfig(inputDir string) types.RunConfig {
	threads := viper.GetInt("threads")
	style := types.LinkRelative
	if viper.GetBool("absolute_links") {
		style = types.LinkAbsolute
	}
	return types.RunConfig{
		InputDir:    inputDir,
		CacheDir:    viper.GetString("cache_dir"),
		ReportPath:  viper.GetString("output"),
		GracePeriod: viper.GetDuration("grace_period"),
		Extraction: types.ExtractionConfig{
			Workers:     threads,
			ForceReload: viper.GetBool("force_reload"),
		},
		Normalize: types.NormalizeConfig{
			AI: types.AIConfig{
				Enabled:    viper.GetBool("ai.enabled"),
				Model:      viper.GetString("ai.model"),
				APIKey:     loadedSecrets.Resolve(secrets.AnthropicAPIKey, viper.GetString("ai.api_key")),
				PromptFile: viper.GetString("prompt_file"),
				Timeout:    viper.GetDuration("ai.timeout"),
				MaxRetries: viper.GetInt("ai.max_retries"),
			},
			RulesFile:      viper.GetString("rules"),
			RulesRequired:  viper.IsSet("rules"),
			StrictRules:    viper.GetBool("strict_rules"),
			Fallback:       viper.GetString("fallback_publisher"),
			KeepRaw:        viper.GetBool("keep_raw_publisher"),
			ForceNormalize: viper.GetBool("force_normalize"),
			Workers:        threads,
		},
		Links: types.LinkConfig{
			LibraryDir: viper.GetString("library_dir"),
			Style:      style,
			DryRun:     viper.GetBool("dry_run"),
		},
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg := runConfig(args[0])

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// A second signal after the first one kills the process.
		<-ctx.Done()
		stop()
	}()

	c, err := pipeline.New(cfg, pipeline.Deps{Logger: logger, Stdout: cmd.OutOrStdout()})
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := c.Run(ctx)
	if res != nil && res.Phase != "" {
		printSummary(cmd.ErrOrStderr(), res, time.Since(start))
	}
	return err
}

func printSummary(w io.Writer, res *pipeline.Result, elapsed time.Duration) {
	if res.DryRun && len(res.Links.Actions) > 0 {
		fmt.Fprintln(w, "Planned changes:")
		for _, a := range res.Links.Actions {
			fmt.Fprintf(w, "  %s\n", linktree.Describe(a))
		}
		fmt.Fprintln(w)
	}

	itoa := strconv.Itoa
	rows := [][]string{
		{"Files scanned", itoa(res.Files)},
		{"Extracted", itoa(res.Extraction.Extracted)},
		{"From cache", itoa(res.Extraction.Cached)},
		{"Title from filename", itoa(res.Extraction.Partial)},
		{"Extraction failures", itoa(res.Extraction.Failed)},
		{"Publishers by rule", itoa(res.Publishers.Rule)},
		{"Publishers by AI", itoa(res.Publishers.AI + res.Publishers.Cached)},
		{"Publishers unresolved", itoa(res.Publishers.Unresolved)},
		{"Links created", itoa(res.Links.Created)},
		{"Links replaced", itoa(res.Links.Replaced)},
		{"Links removed", itoa(res.Links.Removed)},
		{"Links unchanged", itoa(res.Links.Unchanged)},
		{"Link conflicts", itoa(res.Links.Conflicts)},
	}
	if res.CachePruned > 0 {
		rows = append(rows, []string{"Cache entries pruned", itoa(res.CachePruned)})
	}
	rows = append(rows, []string{"Elapsed", elapsed.Round(time.Millisecond).String()})

	title := "libshelf build"
	switch {
	case res.Phase == pipeline.PhaseInterrupted:
		title += " (interrupted)"
	case res.DryRun:
		title += " (dry run)"
	}
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, renderTable([]string{"Metric", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	if res.ReportPath != "" {
		fmt.Fprintf(w, "Report written to %s\n", res.ReportPath)
	}
}
