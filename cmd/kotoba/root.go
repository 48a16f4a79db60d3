package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "kotoba",
	Short: "Personal Japanese vocabulary tracker",
	Long: "Kotoba stores radicals, kanji and vocabulary with their meanings, readings,\n" +
		"composition links, sentences and pitch accents, and serves them to the\n" +
		"study front-end.",
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default .kotoba.yaml)")
	rootCmd.PersistentFlags().String("db", "kotoba.db", "path to the SQLite database")
	rootCmd.PersistentFlags().String("index-dir", "indexes", "directory holding the derived index files")
	rootCmd.PersistentFlags().String("pitch-tsv", "", "pitch-accent reference file (tab-separated)")
	rootCmd.PersistentFlags().String("pitch-cache", "pitch_cache.json", "preprocessed pitch-accent cache")
	rootCmd.PersistentFlags().Bool("prune-dangling", false, "remove composition references to deleted entries")

	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("index_dir", rootCmd.PersistentFlags().Lookup("index-dir"))
	viper.BindPFlag("pitch_tsv", rootCmd.PersistentFlags().Lookup("pitch-tsv"))
	viper.BindPFlag("pitch_cache", rootCmd.PersistentFlags().Lookup("pitch-cache"))
	viper.BindPFlag("prune_dangling", rootCmd.PersistentFlags().Lookup("prune-dangling"))
}

func initConfig() {
	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".kotoba")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("KOTOBA")
	viper.AutomaticEnv()

	// A missing config file is fine; defaults and env cover everything.
	_ = viper.ReadInConfig()
}
