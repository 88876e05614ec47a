// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/libshelf/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the publisher rules file",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a publisher rules file and list its mappings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strict, _ := cmd.Flags().GetBool("strict")
		table, err := rules.Load(args[0], true, rules.Options{Strict: strict, Logger: logger})
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		var rows [][]string
		for _, c := range table.Canonicals() {
			v := table.Variants(c)
			rows = append(rows, []string{c, strconv.Itoa(len(v)), strings.Join(v, "; ")})
		}
		fmt.Fprintln(w, renderTable([]string{"Canonical", "Variants", "Names"}, rows,
			[]columnAlignment{alignLeft, alignRight, alignLeft}))

		skipped := table.Skipped()
		for _, s := range skipped {
			fmt.Fprintf(w, "skipped %v\n", s)
		}
		fmt.Fprintf(w, "%d canonical names, %d lookup keys, %d rows skipped\n",
			len(rows), table.Len(), len(skipped))
		return nil
	},
}

func init() {
	rulesCheckCmd.Flags().Bool("strict", false, "fail on malformed rows instead of skipping them")
	rulesCmd.AddCommand(rulesCheckCmd)
	rootCmd.AddCommand(rulesCmd)
}
