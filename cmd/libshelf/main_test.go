// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/libshelf/internal/pipeline"
	"github.com/pdiddy/libshelf/internal/secrets"
	"github.com/pdiddy/libshelf/pkg/types"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"interrupted", fmt.Errorf("%w during extract", pipeline.ErrInterrupted), exitInterrupted},
		{"locked", pipeline.ErrLocked, exitFatal},
		{"other", errors.New("boom"), exitFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestRunConfig(t *testing.T) {
	t.Cleanup(func() {
		loadedSecrets = nil
		viper.Reset()
	})

	viper.Set("threads", 3)
	viper.Set("absolute_links", true)
	viper.Set("ai.enabled", true)
	viper.Set("ai.timeout", 10*time.Second)
	viper.Set("cache_dir", "/tmp/cache")
	loadedSecrets = secrets.Secrets{secrets.AnthropicAPIKey: "from-file"}

	cfg := runConfig("books")

	assert.Equal(t, "books", cfg.InputDir)
	assert.Equal(t, "/tmp/cache", cfg.CacheDir)
	assert.Equal(t, 3, cfg.Extraction.Workers)
	assert.Equal(t, 3, cfg.Normalize.Workers)
	assert.Equal(t, types.LinkAbsolute, cfg.Links.Style)
	assert.True(t, cfg.Normalize.AI.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Normalize.AI.Timeout)
	assert.Equal(t, "from-file", cfg.Normalize.AI.APIKey)
	assert.False(t, cfg.Normalize.RulesRequired)

	viper.Set("ai.api_key", "from-config")
	cfg = runConfig("books")
	require.NotEmpty(t, cfg.Normalize.AI.APIKey)
	assert.Equal(t, "from-config", cfg.Normalize.AI.APIKey)
}

func TestBuildFlagDefaults(t *testing.T) {
	f := buildCmd.Flags()
	for flag, want := range map[string]string{
		"output":             "library_report.json",
		"rules":              "publisher_rules.csv",
		"library-dir":        "library",
		"fallback-publisher": "Unknown Publisher",
		"grace-period":       "5s",
	} {
		got := f.Lookup(flag)
		require.NotNil(t, got, flag)
		assert.Equal(t, want, got.DefValue, flag)
	}
}
