// Command sessionctl drives the session subsystem from a terminal: sign in, inspect the
// stored session, list stores and sign out.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/retail-session/credentials"
	"github.com/jrsteele09/retail-session/credentials/sqliterepo"
	"github.com/jrsteele09/retail-session/internal/config"
	"github.com/jrsteele09/retail-session/internal/logging"
	"github.com/jrsteele09/retail-session/issuer"
	"github.com/jrsteele09/retail-session/session"
	"github.com/jrsteele09/retail-session/stores"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type options struct {
	configPath string
	command    string
	username   string
	password   string
	role       string
	storeID    string
	quiet      bool
}

func main() {
	opts := parseFlags()
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "sessionctl: %s\n", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to a YAML config file (environment only when empty)")
	flag.StringVar(&opts.command, "cmd", "status", "signin | whoami | status | signout | stores")
	flag.StringVar(&opts.username, "username", "", "username for signin")
	flag.StringVar(&opts.password, "password", "", "password for signin (defaults to $RETAIL_PASSWORD)")
	flag.StringVar(&opts.role, "role", "STAFF", "ADMIN or STAFF")
	flag.StringVar(&opts.storeID, "store", "", "store ID for staff assigned to several stores")
	flag.BoolVar(&opts.quiet, "quiet", false, "skip the banner")
	flag.Parse()
	if opts.password == "" {
		opts.password = os.Getenv("RETAIL_PASSWORD")
	}
	return opts
}

func run(opts options) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.GetLogLevel(), cfg.GetEnv())
	if !opts.quiet {
		displayAppname(cfg.GetAppName())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepo(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	store, err := credentials.NewStore(repo, credentials.WithLogger(logger))
	if err != nil {
		return err
	}
	ic, err := issuer.New(cfg.GetBaseURL(), issuer.WithTimeout(cfg.GetRequestTimeout()), issuer.WithLogger(logger))
	if err != nil {
		return err
	}
	manager, err := session.New(session.Deps{Store: store, Issuer: ic},
		session.WithLogger(logger),
		session.WithMetrics(prometheus.DefaultRegisterer),
		session.WithRefreshTimeout(cfg.GetRefreshTimeout()),
		session.WithRefreshSkew(cfg.GetRefreshSkew()),
		session.WithStoreSelected(func(ref stores.Ref) {
			fmt.Printf("Store selected automatically: %s (%s)\n", ref.Name, ref.ID)
		}),
	)
	if err != nil {
		return err
	}
	manager.OnSignOut(func(reason session.Reason) {
		fmt.Printf("Session ended: %s\n", reason)
	})

	cli := &commands{manager: manager, issuer: ic, opts: opts}
	return cli.run(ctx)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.New(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// openRepo opens the SQLite credential store, sealed when a credential key is configured.
func openRepo(ctx context.Context, cfg config.Config, logger zerolog.Logger) (credentials.Repo, func(), error) {
	db, err := sqliterepo.Open(ctx, cfg.GetCredentialDBPath())
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("closing credential database")
		}
	}

	if cfg.GetCredentialKey() == "" {
		return db, closeFn, nil
	}
	key, err := credentials.ParseKey(cfg.GetCredentialKey())
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	sealed, err := credentials.Sealed(db, key)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return sealed, closeFn, nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
