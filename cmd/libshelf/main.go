// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the libshelf CLI.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pdiddy/libshelf/internal/logging"
	"github.com/pdiddy/libshelf/internal/pipeline"
	"github.com/pdiddy/libshelf/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// Exit codes.
const (
	exitOK          = 0
	exitFatal       = 1
	exitInterrupted = 130
)

var (
	// loadedSecrets holds credentials read from the secrets directory.
	loadedSecrets secrets.Secrets

	// logger is configured from -v and --log-format before any command runs.
	logger = logging.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "libshelf",
	Short: "Build a browsable symlink library from a folder of ebooks",
	Long: `libshelf scans a directory of PDF and EPUB files, reads their title,
authors and publisher, normalizes publisher names against a rule table
(optionally asking Claude about the rest), and maintains a symlink library
organized by_title/ and by_publisher/. Files are never moved or copied.

Extracted metadata and publisher resolutions are cached, so re-running
only touches files that changed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(logging.Options{
			Verbosity: viper.GetInt("verbose"),
			Format:    viper.GetString("log_format"),
			Writer:    os.Stderr,
		})
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)

		s, err := secrets.Load(viper.GetString("secrets_dir"), logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			logger.Debug("loaded secrets", "count", len(s))
		}
		if used := viper.ConfigFileUsed(); used != "" {
			logger.Info("using config file", "path", used)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./libshelf.yaml or ~/.config/libshelf/libshelf.yaml)")
	pf.CountP("verbose", "v", "increase log verbosity (-v info, -vv debug)")
	pf.String("log-format", "", "log format: text or json (default: text on a terminal, json otherwise)")
	pf.String("cache-dir", ".libshelf", "directory holding the metadata and publisher caches")
	pf.String("secrets-dir", secrets.DefaultDir, "directory of credential files")

	mustBind("verbose", pf.Lookup("verbose"))
	mustBind("log_format", pf.Lookup("log-format"))
	mustBind("cache_dir", pf.Lookup("cache-dir"))
	mustBind("secrets_dir", pf.Lookup("secrets-dir"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("libshelf")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "libshelf"))
		}
	}

	viper.SetEnvPrefix("LIBSHELF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("ai.api_key", "LIBSHELF_AI_API_KEY", "LIBSHELF_ANTHROPIC_API_KEY")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "libshelf: reading config: %v\n", err)
			os.Exit(exitFatal)
		}
	}
}

// mustBind binds a viper key to a flag. Binding only fails for a nil flag,
// which is a programming error.
func mustBind(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pipeline.ErrInterrupted):
		return exitInterrupted
	default:
		return exitFatal
	}
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "libshelf: %v\n", err)
	}
	os.Exit(exitCode(err))
}
