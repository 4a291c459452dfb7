package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dtusecurity/pwned-proxy/internal/app"
	"github.com/dtusecurity/pwned-proxy/internal/config"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if errRun := run(ctx, os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run parses flags, loads config, and dispatches to the requested command.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pwned-proxy", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 0, "server port (overrides config file and PORT)")
	migrateOnly := fs.Bool("migrate", false, "run database migrations and exit")
	syncDomains := fs.Bool("sync-domains", false, "sync the domain catalog once and exit")
	createAdmin := fs.String("create-admin", "", "create an admin account with the given username and exit")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	if *port != 0 {
		if errValidate := validatePort(*port); errValidate != nil {
			return errValidate
		}
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}

	switch {
	case *migrateOnly:
		return app.Migrate(ctx, appCfg)
	case *syncDomains:
		return app.SyncDomains(ctx, appCfg)
	case strings.TrimSpace(*createAdmin) != "":
		password := strings.TrimSpace(os.Getenv("ADMIN_PASSWORD"))
		if password == "" {
			return fmt.Errorf("set ADMIN_PASSWORD to create an admin account")
		}
		return app.CreateAdminUser(appCfg, strings.TrimSpace(*createAdmin), password)
	}

	return app.RunServer(ctx, appCfg, *port)
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
