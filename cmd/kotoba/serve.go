package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/japaniel/kotoba/pkg/article"
	"github.com/japaniel/kotoba/pkg/server"
	"github.com/japaniel/kotoba/pkg/sync"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", 8080, "port to listen on")
	serveCmd.Flags().String("static", "public", "static front-end directory")
	serveCmd.Flags().String("source-url", "", "base URL of the spaced-repetition source")
	serveCmd.Flags().String("source-token", "", "bearer token for the source")
	serveCmd.Flags().Int("min-stage", 5, "proficiency stage at which an item counts as learned")
	serveCmd.Flags().Duration("sync-delay", 1100*time.Millisecond, "pause between source detail fetches")
	serveCmd.Flags().String("watermark", "sync_watermark.log", "sync watermark log file")

	viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("static", serveCmd.Flags().Lookup("static"))
	viper.BindPFlag("source_url", serveCmd.Flags().Lookup("source-url"))
	viper.BindPFlag("source_token", serveCmd.Flags().Lookup("source-token"))
	viper.BindPFlag("min_stage", serveCmd.Flags().Lookup("min-stage"))
	viper.BindPFlag("sync_delay", serveCmd.Flags().Lookup("sync-delay"))
	viper.BindPFlag("watermark", serveCmd.Flags().Lookup("watermark"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	lx, conn, err := openLexicon(logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	// The tokenizer dictionary is slow to load; build it once up front
	// rather than per import request.
	analyzer, err := article.NewAnalyzer()
	if err != nil {
		return err
	}
	cfg := server.Config{
		StaticDir: viper.GetString("static"),
		Logger:    logger,
		Articles:  &article.Importer{Lexicon: lx, Analyzer: analyzer, Logger: logger},
	}
	if baseURL := viper.GetString("source_url"); baseURL != "" {
		cfg.Syncer = &sync.Syncer{
			Source:        &sync.HTTPSource{BaseURL: baseURL, Token: viper.GetString("source_token")},
			Lexicon:       lx,
			MinStage:      viper.GetInt("min_stage"),
			Delay:         viper.GetDuration("sync_delay"),
			WatermarkPath: viper.GetString("watermark"),
			Logger:        logger,
		}
	}

	srv := server.New(lx, cfg)
	if err := srv.Start(viper.GetInt("port")); err != nil {
		return err
	}
	logger.Printf("listening on %s", srv.Addr())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return srv.Stop(shutdownCtx)
}
