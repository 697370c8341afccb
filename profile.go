/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"net/http/pprof"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

var profiles = []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"}

func registerProfileHandlers(cfg *Config, mux *httprouter.Router) {
	for _, name := range profiles {
		mux.Handler(http.MethodGet, cfg.prefix+"/pprof/"+name, pprof.Handler(name))
	}

	mux.HandlerFunc(http.MethodGet, cfg.prefix+"/pprof/cmdline", pprof.Cmdline)
	mux.HandlerFunc(http.MethodGet, cfg.prefix+"/pprof/profile", pprof.Profile)
	mux.HandlerFunc(http.MethodGet, cfg.prefix+"/pprof/symbol", pprof.Symbol)
	mux.HandlerFunc(http.MethodGet, cfg.prefix+"/pprof/trace", pprof.Trace)

	log.Info().Str("path", cfg.prefix+"/pprof/").Msg("registered profiling handlers")
}
