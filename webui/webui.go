// Package webui serves the bootnode status pages: a human-readable
// overview, a node listing, a JSON API and the prometheus metrics
// endpoint.
package webui

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"

	_ "net/http/pprof"

	"github.com/Thyanin/aleth/db"
	"github.com/Thyanin/aleth/discover"
	"github.com/Thyanin/aleth/transport"
	"github.com/Thyanin/aleth/webui/handlers"
)

// Config configures the HTTP frontend.
type Config struct {
	// Host is the listen address (default 0.0.0.0)
	Host string

	// Port is the listen port (default 8080)
	Port int

	// SiteName is shown in page titles
	SiteName string
}

// StartHTTPServer starts the frontend in a background goroutine.
func StartHTTPServer(cfg *Config, logger logrus.FieldLogger, table *discover.NodeTable, udp *transport.UDPTransport, database *db.Database) {
	router := mux.NewRouter()

	h := handlers.NewFrontendHandler(cfg.SiteName, table, udp, database)
	router.HandleFunc("/", h.Overview).Methods("GET")
	router.HandleFunc("/nodes", h.Nodes).Methods("GET")
	router.HandleFunc("/api/nodes", h.NodesJSON).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.UseHandler(router)

	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		IdleTimeout: 120 * time.Second,
		Handler:     n,
	}

	logger.WithField("addr", srv.Addr).Info("webui: http server listening")
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("webui: http server failed")
		}
	}()
}
