package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/japaniel/kotoba/pkg/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull newly learned items from the spaced-repetition source",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().String("source-url", "", "base URL of the spaced-repetition source")
	syncCmd.Flags().String("source-token", "", "bearer token for the source")
	syncCmd.Flags().Int("min-stage", 5, "proficiency stage at which an item counts as learned")
	syncCmd.Flags().Duration("sync-delay", 1100*time.Millisecond, "pause between source detail fetches")
	syncCmd.Flags().String("watermark", "sync_watermark.log", "sync watermark log file")

	viper.BindPFlag("source_url", syncCmd.Flags().Lookup("source-url"))
	viper.BindPFlag("source_token", syncCmd.Flags().Lookup("source-token"))
	viper.BindPFlag("min_stage", syncCmd.Flags().Lookup("min-stage"))
	viper.BindPFlag("sync_delay", syncCmd.Flags().Lookup("sync-delay"))
	viper.BindPFlag("watermark", syncCmd.Flags().Lookup("watermark"))

	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	baseURL := viper.GetString("source_url")
	if baseURL == "" {
		return fmt.Errorf("a source URL is required (--source-url or KOTOBA_SOURCE_URL)")
	}

	logger := newLogger()
	lx, conn, err := openLexicon(logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	var bar *progressbar.ProgressBar
	sy := &sync.Syncer{
		Source:        &sync.HTTPSource{BaseURL: baseURL, Token: viper.GetString("source_token")},
		Lexicon:       lx,
		MinStage:      viper.GetInt("min_stage"),
		Delay:         viper.GetDuration("sync_delay"),
		WatermarkPath: viper.GetString("watermark"),
		Logger:        logger,
		OnProgress: func(done, total int) {
			if bar == nil {
				bar = progressbar.Default(int64(total), "syncing")
			}
			bar.Set(done)
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := sy.Run(ctx)
	if res != nil {
		fmt.Printf("checked %d items, added %d\n", res.Checked, res.Added)
		for _, w := range res.AddedList {
			fmt.Printf("  + %s\n", w)
		}
	}
	return err
}
