// Command useradd creates a local account in the lists database.
//
// It is how the first admin gets in on a deployment without GitHub OAuth:
//
//	LIST_PASSWORD=... go run ./cmd/useradd -login root -role admin
//
// The password is read from LIST_PASSWORD, or from -password, so it
// doesn't have to end up in shell history.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/tasklists/internal/auth"
	"github.com/sakif/tasklists/internal/config"
	"github.com/sakif/tasklists/internal/logger"
	sqliteRepo "github.com/sakif/tasklists/internal/repository/sqlite"
	"github.com/sakif/tasklists/internal/service"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "useradd:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("useradd", flag.ContinueOnError)
	login := fs.String("login", "", "login name of the new account (required)")
	password := fs.String("password", os.Getenv("LIST_PASSWORD"), "password (defaults to $LIST_PASSWORD)")
	role := fs.String("role", "user", "role: user or admin")
	dbPath := fs.String("db", cfg.DBPath, "path to the SQLite database")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log, err := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sqliteRepo.New(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	// No tokens are issued here, so no TokenService.
	svc := service.NewAuthService(db, nil, auth.NewPasswordService(), log)
	user, err := svc.CreateLocalUser(context.Background(), *login, *password, *role)
	if err != nil {
		return err
	}

	log.Debug("account stored", slog.String("db", *dbPath))
	fmt.Fprintf(out, "created %s user %q (id %s)\n", user.Role, user.Login, user.ID)
	return nil
}
