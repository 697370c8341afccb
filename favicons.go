/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"embed"
	"fmt"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

//go:embed favicons/*
var favicons embed.FS

func getFavicon(cfg *Config) string {
	return fmt.Sprintf(`<link rel="icon" type="image/svg+xml" href="%s/favicons/favicon.svg">
	<meta name="theme-color" content="#3b6ea5">`, cfg.prefix)
}

func serveFavicons(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		fname := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, cfg.prefix), "/")

		data, err := favicons.ReadFile(fname)
		if err != nil {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Content-Type", contentType(fname))
		w.Header().Set("Cache-Control", "public, max-age=86400")
		securityHeaders(cfg, w)

		if _, err = w.Write(data); err != nil {
			log.Debug().Err(err).Str("file", fname).Msg("failed to write favicon")
		}
	}
}
