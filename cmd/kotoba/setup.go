package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/spf13/viper"

	"github.com/japaniel/kotoba/pkg/db"
	"github.com/japaniel/kotoba/pkg/index"
	"github.com/japaniel/kotoba/pkg/lexicon"
	"github.com/japaniel/kotoba/pkg/pitch"
)

// openLexicon wires the store, the indexes and the pitch table from the
// effective configuration. The indexes are rebuilt from the store when the
// index files are missing or empty while the store is not.
func openLexicon(logger *log.Logger) (*lexicon.Lexicon, *sql.DB, error) {
	conn, err := db.Open(viper.GetString("db"))
	if err != nil {
		return nil, nil, err
	}

	idx, err := index.Load(viper.GetString("index_dir"))
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if idx.Len() == 0 {
		if err := idx.Rebuild(conn); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("initial index build: %w", err)
		}
	}

	var table *pitch.Table
	if tsv := viper.GetString("pitch_tsv"); tsv != "" {
		table, err = pitch.Load(tsv, viper.GetString("pitch_cache"))
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("load pitch reference: %w", err)
		}
		logger.Printf("pitch reference loaded: %d rows", table.Len())
	}

	lx := lexicon.New(conn, idx, table, lexicon.Options{
		PruneDanglingComposition: viper.GetBool("prune_dangling"),
		Logger:                   logger,
	})
	return lx, conn, nil
}

func newLogger() *log.Logger {
	return log.New(os.Stderr, "kotoba: ", log.LstdFlags)
}
