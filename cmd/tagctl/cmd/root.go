package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/example/tagcanon/internal/dictionary"
	"github.com/example/tagcanon/internal/snapshot"
	"github.com/example/tagcanon/internal/store"
	"github.com/example/tagcanon/internal/tagnorm"
)

var (
	dsnFlag           string
	dictionaryFlag    string
	snapshotFlag      string
	shortTokenMaxFlag int
	verboseFlag       bool
)

var rootCmd = &cobra.Command{
	Use:           "tagctl",
	Short:         "tagctl: standard tag classification tools",
	Long:          "Normalize scraped tags, audit the dictionary and retag stored documents.",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&dsnFlag, "dsn", "", "MySQL DSN (default $TAGCANON_DB_DSN)")
	f.StringVar(&dictionaryFlag, "dictionary", "", "YAML dictionary file instead of MySQL (default $TAGCANON_DICTIONARY_FILE)")
	f.StringVar(&snapshotFlag, "snapshot", "", "bbolt dictionary snapshot instead of MySQL")
	f.IntVar(&shortTokenMaxFlag, "short-token-max", dictionary.DefaultShortTokenMax, "Longest single-word trigger matched only as a whole token")
	f.BoolVarP(&verboseFlag, "verbose", "v", false, "Log dictionary warnings to stderr")

	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(retagCmd)
	rootCmd.AddCommand(dictionaryCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelError
	if verboseFlag {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func dsn() string {
	if dsnFlag != "" {
		return dsnFlag
	}
	return os.Getenv("TAGCANON_DB_DSN")
}

func openDB() (*sqlx.DB, error) {
	d := dsn()
	if d == "" {
		return nil, fmt.Errorf("no database: pass --dsn or set TAGCANON_DB_DSN")
	}
	db, err := sqlx.Open("mysql", d)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// openSource picks the dictionary source: a snapshot, then a YAML file, then
// MySQL. The returned close func releases the database if one was opened.
func openSource() (dictionary.Source, func(), error) {
	if snapshotFlag != "" {
		return snapshot.Source{Path: snapshotFlag}, func() {}, nil
	}
	path := dictionaryFlag
	if path == "" {
		path = os.Getenv("TAGCANON_DICTIONARY_FILE")
	}
	if path != "" {
		return dictionary.FileSource{Path: path}, func() {}, nil
	}
	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	return store.New(db), func() { _ = db.Close() }, nil
}

func openEngine() (*tagnorm.Engine, func(), error) {
	src, closeFn, err := openSource()
	if err != nil {
		return nil, nil, err
	}
	return tagnorm.NewFromSource(src, dictionary.Options{ShortTokenMax: shortTokenMaxFlag}, newLogger()), closeFn, nil
}
