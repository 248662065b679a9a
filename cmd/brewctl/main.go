package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-brew-client/apiclient"
	"github.com/jrsteele09/go-brew-client/auth"
	"github.com/jrsteele09/go-brew-client/events"
	"github.com/jrsteele09/go-brew-client/identity"
	"github.com/jrsteele09/go-brew-client/identity/oidcprovider"
	"github.com/jrsteele09/go-brew-client/internal/config"
	"github.com/jrsteele09/go-brew-client/sessions/filestore"
	"github.com/jrsteele09/go-brew-client/token/refresh"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Error().Err(err).Msg("brewctl failed")
		os.Exit(1)
	}
}

// app is everything a command needs, built once per invocation
type app struct {
	cfg      config.Config
	api      *apiclient.Client
	provider identity.Provider
	session  *auth.Service
	registry *prometheus.Registry
	in       io.Reader
	out      io.Writer
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	global := flag.NewFlagSet("brewctl", flag.ContinueOnError)
	global.SetOutput(out)
	quiet := global.Bool("quiet", false, "do not print the banner")
	showMetrics := global.Bool("metrics", false, "print refresh metrics before exiting")
	global.Usage = func() { usage(out, global) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return flag.ErrHelp
	}

	cfg, err := config.Load(os.Getenv(config.ConfigFileVar))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	setupLogger(cfg)

	name := global.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		global.Usage()
		return fmt.Errorf("unknown command %q", name)
	}

	if !*quiet {
		displayAppname(out, cfg.GetAppName())
	}

	a, err := newApp(ctx, cfg, in, out)
	if err != nil {
		return err
	}
	if *showMetrics {
		defer printMetrics(out, a.registry)
	}
	return cmd.run(ctx, a, global.Args()[1:])
}

func newApp(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer) (*app, error) {
	store := filestore.New(cfg.GetSessionFile(),
		filestore.WithPassphrase(cfg.GetSessionPassphrase()),
		filestore.WithLogger(log.Logger),
	)
	api := apiclient.NewFromConfig(cfg, apiclient.WithLogger(log.Logger))

	var provider identity.Provider = api
	var refresher refresh.Refresher = api
	if cfg.GetIdentityProvider() == config.IdentityProviderOIDC {
		p, err := oidcprovider.New(ctx, cfg, oidcprovider.WithLogger(log.Logger))
		if err != nil {
			return nil, fmt.Errorf("configuring OIDC provider: %w", err)
		}
		provider = p
		refresher = p
	}

	registry := prometheus.NewRegistry()
	session, err := auth.NewService(store, refresher,
		auth.WithConfig(cfg),
		auth.WithLogger(log.Logger),
		auth.WithRefreshOptions(refresh.WithMetrics(refresh.NewMetrics(registry))),
	)
	if err != nil {
		return nil, err
	}
	api.SetSession(session)

	session.Subscribe(events.TopicLogout, func() {
		log.Debug().Str("session_file", cfg.GetSessionFile()).Msg("session cleared")
	})

	return &app{
		cfg:      cfg,
		api:      api,
		provider: provider,
		session:  session,
		registry: registry,
		in:       in,
		out:      out,
	}, nil
}

func setupLogger(cfg config.EnvConfig) {
	level, err := zerolog.ParseLevel(cfg.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func printMetrics(out io.Writer, registry *prometheus.Registry) {
	families, err := registry.Gather()
	if err != nil {
		log.Warn().Err(err).Msg("gathering metrics")
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			fmt.Fprintf(out, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
}

func displayAppname(out io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(out, myFigure.String())
}

func usage(out io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(out, "Usage: brewctl [flags] <command> [command flags]\n\nCommands:\n")
	for _, name := range commandNames() {
		fmt.Fprintf(out, "  %-20s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(out, "\nFlags:\n")
	fs.PrintDefaults()
}
