package main

import (
	"embed"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/JaimeStill/aura/pkg/database"
)

//go:embed migrations/*.sql
var migrations embed.FS

const envDSN = "AURA_DB_DSN"

// databaseEnv mirrors the server's database variables so both binaries
// resolve the same connection when no DSN is given.
var databaseEnv = &database.Env{
	Host:     "AURA_DB_HOST",
	Port:     "AURA_DB_PORT",
	Name:     "AURA_DB_NAME",
	User:     "AURA_DB_USER",
	Password: "AURA_DB_PASSWORD",
	SSLMode:  "AURA_DB_SSL_MODE",
}

// migrateLog routes migrate's progress output through slog.
type migrateLog struct {
	logger  *slog.Logger
	verbose bool
}

func (l migrateLog) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLog) Verbose() bool { return l.verbose }

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(os.Args[1:], logger); err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	var (
		dsn     = fs.String("dsn", os.Getenv(envDSN), "database URL (default $"+envDSN+" or the AURA_DB_* variables)")
		up      = fs.Bool("up", false, "apply all pending migrations")
		down    = fs.Bool("down", false, "revert all migrations")
		steps   = fs.Int("steps", 0, "apply n migrations, or revert -n")
		version = fs.Bool("version", false, "print the current version")
		force   = fs.Int("force", -1, "mark version n as clean without running it")
		verbose = fs.Bool("v", false, "log each migration step")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	forced := false
	fs.Visit(func(f *flag.Flag) { forced = forced || f.Name == "force" })

	if *dsn == "" {
		var cfg database.Config
		if err := cfg.Finalize(databaseEnv); err != nil {
			return fmt.Errorf("database config: %w", err)
		}
		*dsn = cfg.URL()
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, *dsn)
	if err != nil {
		return fmt.Errorf("open migrator: %w", err)
	}
	defer m.Close()
	m.Log = migrateLog{logger: logger, verbose: *verbose}

	ignoreNoChange := func(err error) error {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no change")
			return nil
		}
		return err
	}

	switch {
	case *version:
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("version: none")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("version: %d, dirty: %v\n", v, dirty)
		return nil
	case forced:
		if err := m.Force(*force); err != nil {
			return err
		}
		logger.Info("version forced", "version", *force)
		return nil
	case *up:
		return ignoreNoChange(m.Up())
	case *down:
		return ignoreNoChange(m.Down())
	case *steps != 0:
		return ignoreNoChange(m.Steps(*steps))
	default:
		fs.Usage()
		return errors.New("no action given: use -up, -down, -steps, -version or -force")
	}
}
