package httpserver

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/keithlinneman/contentgate/internal/host"
	"github.com/keithlinneman/contentgate/internal/httpmw"
	"github.com/keithlinneman/contentgate/internal/log"
	"github.com/keithlinneman/contentgate/internal/probe"
)

type Options struct {
	Logger       log.Logger
	Port         int
	Router       *host.Router // application routes plus any installed route overrides
	UseRecoverMW bool
	OnPanic      func() // called after a recovered panic, before the 500 is written
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	CORS         *cors.Cors
	ClientIPOpts httpmw.ClientIPOptions
	Health       probe.Probe
	Readiness    probe.Probe
}
