package main

import (
	"context"
	"fmt"
	"io"

	"datacatalog/db"
	"datacatalog/pkg/config"
	"datacatalog/pkg/license"
	"datacatalog/pkg/store"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// app holds state shared by all commands.
type app struct {
	logger *log.Logger
	cfg    *config.Config

	verbose  bool
	envFiles []string
	dbPath   string
}

func newApp(w io.Writer) *app {
	return &app{
		logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           log.InfoLevel,
		}),
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "catalog",
		Short:        "Data catalog server and admin tool",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.verbose {
				a.logger.SetLevel(log.DebugLevel)
			}
			log.SetDefault(a.logger)
			cmd.SetContext(withLogger(cmd.Context(), a.logger))

			cfg, err := config.Load(a.envFiles...)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env", []string{".env"}, ".env files to load")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (overrides CATALOG_DB_PATH)")

	root.AddCommand(a.serveCommand())
	root.AddCommand(a.userCommand())
	root.AddCommand(a.tokenCommand())
	root.AddCommand(a.countsCommand())

	return root
}

// openDB opens the catalog database, creating the schema when missing.
func (a *app) openDB() (*db.Service, error) {
	dbCfg := db.DefaultConfig()
	dbCfg.DBPath = a.cfg.Get(config.KeyDBPath, dbCfg.DBPath)
	if a.dbPath != "" {
		dbCfg.DBPath = a.dbPath
	}

	svc, err := db.New(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database service: %w", err)
	}

	if err := svc.VerifySchema(); err != nil {
		a.logger.Warn("Schema verification failed, initializing", "err", err)
		if err := svc.InitializeSchema(); err != nil {
			svc.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return svc, nil
}

// withSession runs fn in a session on a freshly opened database. fn
// commits what it wants kept.
func (a *app) withSession(ctx context.Context, fn func(*store.Session) error) error {
	svc, err := a.openDB()
	if err != nil {
		return err
	}
	defer svc.Close()

	sess := store.NewSession(svc.DB)
	defer sess.Close()
	return fn(sess)
}

func (a *app) licenses() (*license.Registry, error) {
	path := a.cfg.Get(config.KeyLicensesFile, "")
	if path == "" {
		return license.Default(), nil
	}
	a.logger.Debug("Loading license table", "path", path)
	return license.LoadFile(path)
}

type ctxKey int

const loggerKey ctxKey = 0

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext falls back to log.Default when no logger is attached.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
