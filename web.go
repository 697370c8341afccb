/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("matchgrid v" + releaseVersion + "\n"))
		if err != nil {
			log.Debug().Err(err).Msg("failed to write version")

			return
		}

		log.Info().
			Str("size", humanReadableSize(int64(written))).
			Str("client", realIP(r)).
			Dur("elapsed", time.Since(startTime).Round(time.Microsecond)).
			Msg("served version page")
	}
}

// withCORS wraps the router when cross-origin access has been configured.
func withCORS(cfg *Config, handler http.Handler) http.Handler {
	if len(cfg.corsOrigins) == 0 {
		return handler
	}

	return cors.New(cors.Options{
		AllowedOrigins: cfg.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	}).Handler(handler)
}

func newRouter(cfg *Config, boards *Boards) (*httprouter.Router, *GameManager) {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		log.Error().Interface("panic", i).Str("path", r.URL.Path).Msg("recovered from panic")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage(cfg, "Server Error", `<a href="/">An error has occurred. Please try again.</a>`))
	}

	mux.GET(cfg.prefix+"/", serveHomePage(cfg, boards, memoryPath))

	mux.GET(cfg.prefix+"/assets/*asset", serveAssets(cfg))

	mux.GET(cfg.prefix+"/favicons/*favicon", serveFavicons(cfg))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	gm := registerMemoryGame(cfg, boards, memoryPath, mux)

	return mux, gm
}

func ServePage(ctx context.Context, cfg *Config) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	log.Info().Str("version", releaseVersion).Msg("starting matchgrid")

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	boards, err := loadBoards(cfg)
	if err != nil {
		return err
	}

	mux, gm := newRouter(cfg, boards)
	defer gm.Close()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           withCORS(cfg, mux),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	errs := make(chan error, 1)

	go func() {
		var err error

		log.Info().Msgf("listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)

		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errs:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	log.Info().Msg("shut down")

	return nil
}
