package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Recompute the derived index files from the database",
	Long: "Rebuild resynchronizes the id, text and summary indexes with the\n" +
		"relational store. Run it after a crash left the indexes behind, or\n" +
		"whenever the index files are suspect.",
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	lx, conn, err := openLexicon(logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := lx.Rebuild(); err != nil {
		return err
	}
	fmt.Printf("indexes rebuilt: %d entries\n", lx.Indexes().Len())
	return nil
}
