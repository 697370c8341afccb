/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"embed"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Seednode/matchgrid/games/memory"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

//go:embed assets/*
var assets embed.FS

func boardSummary(board Board) string {
	cfg := board.Normalized()

	return fmt.Sprintf("%d×%d cards, %s on the clock, %s theme",
		cfg.Rows, cfg.Columns, memory.FormatClock(cfg.TimeLimit), cfg.Theme)
}

func serveHomePage(cfg *Config, boards *Boards, path string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body strings.Builder

		body.WriteString(`<main class="home"><h1>matchgrid</h1><ul class="boards">`)

		for _, board := range boards.List() {
			body.WriteString(fmt.Sprintf(`<li><a href="%s%s?board=%s">%s</a> <span>%s</span></li>`,
				cfg.prefix, path,
				html.EscapeString(board.Name),
				html.EscapeString(board.Name),
				html.EscapeString(boardSummary(board))))
		}

		body.WriteString(`</ul></main>`)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		if _, err := w.Write([]byte(newPage(cfg, "matchgrid", body.String()))); err != nil {
			log.Debug().Err(err).Msg("failed to write home page")
		}
	}
}

func serveHealthCheck(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		if _, err := w.Write([]byte("Ok\n")); err != nil {
			log.Debug().Err(err).Msg("failed to write health check")
		}
	}
}

func serveAssets(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		fname := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, cfg.prefix), "/")

		data, err := assets.ReadFile(fname)
		if err != nil {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Content-Type", contentType(fname))
		securityHeaders(cfg, w)

		if _, err = w.Write(data); err != nil {
			log.Debug().Err(err).Str("file", fname).Msg("failed to write asset")
		}
	}
}

func serveRobots(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: Amazonbot
Disallow: /

User-agent: Applebot-Extended
Disallow: /

User-agent: Bytespider
Disallow: /

User-agent: CCBot
Disallow: /

User-agent: ClaudeBot
Disallow: /

User-agent: Google-Extended
Disallow: /

User-agent: GPTBot
Disallow: /

User-agent: meta-externalagent
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		if _, err := w.Write([]byte(data)); err != nil {
			log.Debug().Err(err).Msg("failed to write robots.txt")
		}
	}
}
