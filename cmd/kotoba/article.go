package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/japaniel/kotoba/pkg/article"
)

var articleCmd = &cobra.Command{
	Use:   "import-article URL",
	Short: "Scan a web article for vocabulary not yet tracked",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportArticle,
}

func init() {
	articleCmd.Flags().Bool("create", false, "create placeholder entries for unknown words")
	rootCmd.AddCommand(articleCmd)
}

func runImportArticle(cmd *cobra.Command, args []string) error {
	create, _ := cmd.Flags().GetBool("create")

	logger := newLogger()
	lx, conn, err := openLexicon(logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	importer := &article.Importer{
		Lexicon:            lx,
		CreatePlaceholders: create,
		Logger:             logger,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := importer.FromURL(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s\n%d sentences, %d unknown words\n", report.Title, report.Sentences, len(report.Candidates))
	for _, c := range report.Candidates {
		if c.Reading != "" {
			fmt.Printf("  %s (%s) ×%d\n", c.Characters, c.Reading, c.Count)
		} else {
			fmt.Printf("  %s ×%d\n", c.Characters, c.Count)
		}
	}
	if len(report.Created) > 0 {
		fmt.Printf("created %d placeholder entries\n", len(report.Created))
	}
	return nil
}
