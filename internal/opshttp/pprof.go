package opshttp

import (
	"net/http"
	"net/http/pprof"
)

// RegisterPprof wires the standard pprof handlers onto the admin mux.
// net/http/pprof registers on DefaultServeMux as an import side effect; we
// use our own mux, so the handlers are attached explicitly.
func RegisterPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}
