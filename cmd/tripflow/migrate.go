package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/BaSui01/tripflow/config"
	"github.com/BaSui01/tripflow/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

// migrateFlags 所有迁移子命令共享的参数
type migrateFlags struct {
	configPath string
	dbType     string
	dbURL      string
	all        bool
}

func newMigrateFlagSet(name string, allFlag bool) (*flag.FlagSet, *migrateFlags) {
	f := &migrateFlags{}
	fs := flag.NewFlagSet("migrate "+name, flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to config file")
	fs.StringVar(&f.dbType, "db-type", "", "Database type (postgres, mysql, sqlite)")
	fs.StringVar(&f.dbURL, "db-url", "", "Database connection URL")
	if allFlag {
		fs.BoolVar(&f.all, "all", false, "Rollback all migrations")
	}
	return fs, f
}

// openMigrator 优先使用 --db-type/--db-url，否则从配置文件与环境变量构建
func (f *migrateFlags) openMigrator() (*migration.DefaultMigrator, error) {
	if f.dbType != "" && f.dbURL != "" {
		return migration.NewMigratorFromURL(f.dbType, f.dbURL)
	}

	loader := config.NewLoader()
	if f.configPath != "" {
		loader = loader.WithConfigPath(f.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if f.dbType != "" {
		cfg.Database.Driver = f.dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database)
}

// runMigrate handles the migrate command and exits non-zero on failure.
func runMigrate(args []string) {
	if err := migrateCommand(context.Background(), args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func migrateCommand(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		printMigrateUsage(out)
		return fmt.Errorf("missing migrate subcommand")
	}

	sub, rest := args[0], args[1:]
	if sub == "help" || sub == "-h" || sub == "--help" {
		printMigrateUsage(out)
		return nil
	}

	// goto、force、steps 的第一个参数是数字
	var version int64
	if sub == "goto" || sub == "force" || sub == "steps" {
		if len(rest) < 1 {
			return fmt.Errorf("usage: tripflow migrate %s <n>", sub)
		}
		v, err := strconv.ParseInt(rest[0], 10, 32)
		if err != nil || (sub == "goto" && v < 0) {
			return fmt.Errorf("invalid version number: %s", rest[0])
		}
		version, rest = v, rest[1:]
	}

	switch sub {
	case "up", "down", "steps", "status", "info", "version", "goto", "force", "reset":
	default:
		printMigrateUsage(out)
		return fmt.Errorf("unknown migrate subcommand: %s", sub)
	}

	fs, flags := newMigrateFlagSet(sub, sub == "down")
	fs.SetOutput(out)
	if err := fs.Parse(rest); err != nil {
		return err
	}

	migrator, err := flags.openMigrator()
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	cmd := migration.Command{Op: migration.Op(sub), N: int(version)}
	if sub == "reset" || (sub == "down" && flags.all) {
		cmd.Op = migration.OpDownAll
	}
	if err := migration.NewReporter(migrator, out).Run(ctx, cmd); err != nil {
		return fmt.Errorf("migrate %s: %w", sub, err)
	}
	return nil
}

func printMigrateUsage(w io.Writer) {
	fmt.Fprintln(w, `Database Migration Commands

Usage:
  tripflow migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration (--all for every migration)
  steps     Apply n migrations (negative n rolls back)
  status    Show migration status
  info      Show current version and pending count
  version   Show current migration version
  goto      Migrate to a specific version
  force     Force set migration version (use with caution)
  reset     Rollback all migrations
  help      Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  tripflow migrate up
  tripflow migrate up --config /etc/tripflow/config.yaml
  tripflow migrate up --db-type sqlite --db-url "file:tripflow.db?_pragma=foreign_keys(1)"
  tripflow migrate down
  tripflow migrate status
  tripflow migrate goto 1
  tripflow migrate force 0
  tripflow migrate reset`)
}
