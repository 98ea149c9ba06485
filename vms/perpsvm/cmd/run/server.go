// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"context"
	"encoding/json"
	"net/http"
	"path"

	"github.com/gorilla/mux"
	"github.com/luxfi/constants"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	perps "github.com/luxfi/perps"
)

const (
	baseURL      = "/ext"
	perpsPath    = baseURL + "/perps"
	metricsPath  = baseURL + "/metrics"
	healthPath   = baseURL + "/health"
	jsonMimeType = "application/json"

	maxRequestBodySize = int64(constants.MiB)
)

// NewHandler routes the VM's handlers under /ext/perps next to the metrics
// and health endpoints.
func NewHandler(
	ctx context.Context,
	vm perps.VM,
	gatherer prometheus.Gatherer,
	allowedOrigins []string,
) (http.Handler, error) {
	handlers, err := vm.CreateHandlers(ctx)
	if err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	for extension, handler := range handlers {
		router.Handle(path.Join(perpsPath, extension), http.MaxBytesHandler(handler, maxRequestBodySize))
	}
	router.Handle(metricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.HandleFunc(healthPath, healthHandler(vm)).Methods(http.MethodGet)

	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: true,
	}).Handler(router), nil
}

type healthReply struct {
	Healthy bool        `json:"healthy"`
	Checks  interface{} `json:"checks,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// healthHandler replies 200 when the VM reports itself healthy and 503
// otherwise.
func healthHandler(vm perps.VM) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reply healthReply
		checks, err := vm.HealthCheck(r.Context())
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Checks = checks
			if report, ok := checks.(map[string]interface{}); ok {
				reply.Healthy, _ = report["healthy"].(bool)
			}
		}

		w.Header().Set("Content-Type", jsonMimeType)
		if !reply.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(reply)
	}
}
