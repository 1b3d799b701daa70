// Command keygen issues and revokes license keys in the hosted licenses
// table.
//
//	keygen generate -n 10 -expires 2027-01-01
//	keygen revoke GLAB-ABCD-EFGH-JKLM
//	keygen list -limit 50
//	keygen migrate
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"glabassets/internal/config"
	"glabassets/internal/infrastructure"
	"glabassets/internal/license"
	"glabassets/internal/storage/postgres"
	"glabassets/pkg/contracts/domain"
)

const usage = `usage: keygen <command> [flags]

commands:
  generate   create new unbound keys
  revoke     mark a key revoked
  list       show the newest keys
  migrate    apply pending schema migrations
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	cfg.Logging.Output = "console"

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", slog.String("error", err.Error()))
		logger = slog.Default()
	}
	logger = infrastructure.WithComponent(logger, "keygen")

	db, err := postgres.New(cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	repo := postgres.NewLicenseRepository(db)

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "generate":
		err = generate(ctx, repo, args, logger)
	case "revoke":
		err = revoke(ctx, repo, args, logger)
	case "list":
		err = list(ctx, repo, args)
	case "migrate":
		err = migrate(ctx, db, logger)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("Command failed", slog.String("command", cmd), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func generate(ctx context.Context, repo *postgres.LicenseRepository, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	count := fs.Int("n", 1, "number of keys to create")
	expires := fs.String("expires", "", "optional expiry date (YYYY-MM-DD), informational only")
	fs.Parse(args)

	var expiresAt *time.Time
	if *expires != "" {
		t, err := time.Parse(time.DateOnly, *expires)
		if err != nil {
			return fmt.Errorf("invalid -expires: %w", err)
		}
		expiresAt = &t
	}

	for i := 0; i < *count; i++ {
		key, err := license.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		rec, err := repo.Insert(ctx, key, expiresAt)
		if err != nil {
			return fmt.Errorf("failed to insert key: %w", err)
		}
		logger.Info("License key created", slog.String("key", license.MaskKey(rec.Key)))
		fmt.Println(rec.Key)
	}
	return nil
}

func revoke(ctx context.Context, repo *postgres.LicenseRepository, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("revoke takes exactly one key")
	}

	key := license.NormalizeKey(fs.Arg(0))
	if err := repo.SetStatus(ctx, key, domain.LicenseStatusRevoked); err != nil {
		return err
	}
	logger.Info("License key revoked", slog.String("key", license.MaskKey(key)))
	return nil
}

func list(ctx context.Context, repo *postgres.LicenseRepository, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 50, "maximum rows")
	fs.Parse(args)

	records, err := repo.List(ctx, *limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSTATUS\tDEVICE\tCREATED")
	for _, r := range records {
		device := "-"
		if r.Bound() {
			device = *r.DeviceID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Key, r.Status, device, r.CreatedAt.Format(time.DateOnly))
	}
	return w.Flush()
}

func migrate(ctx context.Context, db *postgres.DB, logger *slog.Logger) error {
	migrator, err := postgres.NewMigrator(db, logger)
	if err != nil {
		return err
	}
	return migrator.Up(ctx)
}
