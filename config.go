/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/matchgrid/games/memory"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	boardsFile     string
	corsOrigins    []string
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	// board is served when no preset is requested.
	board memory.Config
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.board.TimeLimit < 0 {
		return fmt.Errorf("invalid time limit (must be zero or greater): %d", c.board.TimeLimit)
	}
	if err := c.board.Validate(); err != nil {
		return fmt.Errorf("invalid default board: %w", err)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("MATCHGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "matchgrid",
		Short:         "A timed memory-matching card game, served to the browser.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}

			setupLogging(cfg)

			return ServePage(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: MATCHGRID_BIND)")
	fs.StringVar(&cfg.boardsFile, "boards", "", "path to a yaml file of board presets (env: MATCHGRID_BOARDS)")
	fs.StringSliceVar(&cfg.corsOrigins, "cors-origin", nil, "origin allowed to make cross-origin requests, may be repeated (env: MATCHGRID_CORS_ORIGIN)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: MATCHGRID_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: MATCHGRID_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: MATCHGRID_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: MATCHGRID_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: MATCHGRID_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: MATCHGRID_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: MATCHGRID_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: MATCHGRID_VERSION)")

	fs.IntVar(&cfg.board.Rows, "rows", 4, "rows in the default board, rounded up to even (env: MATCHGRID_ROWS)")
	fs.IntVar(&cfg.board.Columns, "columns", 4, "columns in the default board, rounded up to even (env: MATCHGRID_COLUMNS)")
	fs.IntVar(&cfg.board.Width, "width", 800, "width of the default board in pixels (env: MATCHGRID_WIDTH)")
	fs.IntVar(&cfg.board.Height, "height", 800, "height of the default board in pixels (env: MATCHGRID_HEIGHT)")
	fs.StringVar(&cfg.board.Theme, "theme", "", "theme of the default board, \"default\" or \"dark\" (env: MATCHGRID_THEME)")
	fs.IntVar(&cfg.board.TimeLimit, "time-limit", 20, "seconds allowed per round on the default board (env: MATCHGRID_TIME_LIMIT)")
	fs.StringVar(&cfg.board.Selector, "selector", "#grid", "container element for the default board (env: MATCHGRID_SELECTOR)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("matchgrid v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
