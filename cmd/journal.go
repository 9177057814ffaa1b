// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Bucks County Community Church

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/events"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/journal"
)

var (
	journalKind string
	journalJSON bool
)

var journalCmd = &cobra.Command{
	Use:   "journal FILE",
	Short: "Print an event journal written by \"avctl listen --journal\"",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := journal.Open(args[0])
		if err != nil {
			return err
		}
		defer r.Close()
		n, err := printJournal(os.Stdout, r, events.Kind(journalKind), journalJSON)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%d event(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.Flags().StringVarP(&journalKind, "kind", "k", "", "Only show events of this kind (state, trigger, command, preset, error)")
	journalCmd.Flags().BoolVar(&journalJSON, "json", false, "Print one JSON object per line")
}

// printJournal writes every event matching kind (all when empty) and
// returns how many were written
func printJournal(w io.Writer, r *journal.Reader, kind events.Kind, asJSON bool) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if kind != "" && e.Kind != kind {
			continue
		}
		n++
		if asJSON {
			if err := enc.Encode(e); err != nil {
				return n, err
			}
			continue
		}
		fmt.Fprintf(w, "%s %s\n", e.Time.Format("2006-01-02"), events.FormatEvent(e))
	}
}
