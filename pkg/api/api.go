// Package api serves the REST surface of the daemon: health and cluster
// info, ACME challenge files, the authenticated resource endpoints, and the
// deploy upload.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/doseidotio/doseid/pkg/certificate"
	"github.com/doseidotio/doseid/pkg/deployment"
	"github.com/doseidotio/doseid/pkg/log"
	"github.com/doseidotio/doseid/pkg/metrics"
	"github.com/doseidotio/doseid/pkg/session"
	"github.com/doseidotio/doseid/pkg/store"
)

// Server carries the handler dependencies.
type Server struct {
	store       *store.Store
	sessions    *session.Manager
	certs       *certificate.Manager
	deployments *deployment.Manager
}

// NewServer creates the API server.
func NewServer(st *store.Store, sessions *session.Manager, certs *certificate.Manager, deployments *deployment.Manager) *Server {
	return &Server{
		store:       st,
		sessions:    sessions,
		certs:       certs,
		deployments: deployments,
	}
}

// Router assembles the public and authenticated routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)
	r.Get("/.well-known/acme-challenge/{token}", s.handleChallenge)
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/docs", s.handleDocs)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/auth/login/ssh", s.handleLoginSSH)
		r.Delete("/auth/logout", s.handleLogout)
		r.Get("/user", s.handleUser)
		r.Get("/user/ssh-key", s.handleUserSSHKeys)
		r.Get("/certificate", s.handleCertificates)
		r.Get("/service", s.handleServices)
		r.Get("/service/{service_id}/deployment", s.handleServiceDeployments)
		r.Get("/service/{service_id}/ingress", s.handleServiceIngresses)
		r.Post("/deploy", s.handleDeploy)
	})

	return r
}

// ListenAndServe serves the API on addr until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: s.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger := log.WithComponent("api")
			logger.Error().Err(err).Msg("api shutdown failed")
		}
	}()
	logger := log.WithComponent("api")
	logger.Info().Str("address", addr).Msg("api server running")
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		w.Write([]byte("{}"))
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger := log.WithComponent("api")
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
