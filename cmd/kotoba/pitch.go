package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/japaniel/kotoba/pkg/pitch"
)

var pitchCmd = &cobra.Command{
	Use:   "pitch-cache",
	Short: "Preprocess the pitch-accent reference file into the JSON cache",
	RunE:  runPitchCache,
}

func init() {
	rootCmd.AddCommand(pitchCmd)
}

func runPitchCache(cmd *cobra.Command, args []string) error {
	tsv := viper.GetString("pitch_tsv")
	if tsv == "" {
		return fmt.Errorf("a pitch reference file is required (--pitch-tsv or KOTOBA_PITCH_TSV)")
	}
	table, err := pitch.LoadTSV(tsv)
	if err != nil {
		return err
	}
	cache := viper.GetString("pitch_cache")
	if err := table.WriteCache(cache); err != nil {
		return err
	}
	fmt.Printf("cached %d pitch rows at %s\n", table.Len(), cache)
	return nil
}
