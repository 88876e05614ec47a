// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/libshelf/internal/metacache"
	"github.com/pdiddy/libshelf/internal/pipeline"
	"github.com/pdiddy/libshelf/internal/pubcache"
	"github.com/pdiddy/libshelf/pkg/types"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the metadata and publisher caches",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := viper.GetString("cache_dir")
		meta, err := metacache.Open(cmd.Context(), filepath.Join(dir, metacache.DBFile),
			metacache.Options{ReadOnly: true, Logger: logger})
		if err != nil {
			return err
		}
		defer meta.Close()
		pubs, err := pubcache.Open(filepath.Join(dir, pubcache.File), pubcache.Options{ReadOnly: true, Logger: logger})
		if err != nil {
			return err
		}

		byStatus := map[types.ExtractionStatus]int{}
		for _, e := range meta.Entries() {
			byStatus[e.Metadata.Status]++
		}
		bySource := map[types.PublisherSource]int{}
		for _, e := range pubs.Entries() {
			bySource[e.Source]++
		}

		itoa := strconv.Itoa
		rows := [][]string{
			{"metadata", "total", itoa(meta.Len())},
			{"metadata", string(types.StatusSuccess), itoa(byStatus[types.StatusSuccess])},
			{"metadata", string(types.StatusPartial), itoa(byStatus[types.StatusPartial])},
			{"metadata", string(types.StatusFailed), itoa(byStatus[types.StatusFailed])},
			{"publishers", "total", itoa(pubs.Len())},
			{"publishers", string(types.SourceRule), itoa(bySource[types.SourceRule])},
			{"publishers", string(types.SourceAI), itoa(bySource[types.SourceAI])},
			{"publishers", string(types.SourceUnresolved), itoa(bySource[types.SourceUnresolved])},
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Cache", "Kind", "Entries"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight}))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached entries",
	Long: `Clear empties the metadata cache, the publisher cache, or both (the
default). The next build re-extracts or re-resolves everything cleared.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		onlyMeta, _ := cmd.Flags().GetBool("metadata")
		onlyPubs, _ := cmd.Flags().GetBool("publishers")
		clearMeta := onlyMeta || !onlyPubs
		clearPubs := onlyPubs || !onlyMeta

		dir := viper.GetString("cache_dir")
		release, err := pipeline.AcquireLock(dir)
		if err != nil {
			return err
		}
		defer func() {
			if err := release(); err != nil {
				logger.Warn("releasing run lock", "error", err)
			}
		}()

		var errs []error
		if clearMeta {
			errs = append(errs, clearMetadata(cmd, dir))
		}
		if clearPubs {
			errs = append(errs, clearPublishers(cmd, dir))
		}
		return errors.Join(errs...)
	},
}

func clearMetadata(cmd *cobra.Command, dir string) error {
	meta, err := metacache.Open(cmd.Context(), filepath.Join(dir, metacache.DBFile), metacache.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer meta.Close()
	n := meta.Len()
	meta.Clear()
	if err := meta.Flush(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cleared %d metadata entries\n", n)
	return nil
}

func clearPublishers(cmd *cobra.Command, dir string) error {
	pubs, err := pubcache.Open(filepath.Join(dir, pubcache.File), pubcache.Options{Logger: logger})
	if err != nil {
		return err
	}
	n := pubs.Len()
	pubs.Clear()
	if err := pubs.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cleared %d publisher entries\n", n)
	return nil
}

func init() {
	cacheClearCmd.Flags().Bool("metadata", false, "clear only the metadata cache")
	cacheClearCmd.Flags().Bool("publishers", false, "clear only the publisher cache")
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
