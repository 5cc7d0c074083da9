package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/doseidotio/doseid/pkg/app"
	"github.com/doseidotio/doseid/pkg/cluster"
	"github.com/doseidotio/doseid/pkg/log"
	"github.com/doseidotio/doseid/pkg/store"
	"github.com/doseidotio/doseid/pkg/version"
)

const maxDeployUploadBytes = 512 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    cluster.Name(),
		"version": version.Version,
	})
}

// handleChallenge serves a pending ACME HTTP-01 key authorization as plain
// text. Unknown or expired tokens are 404.
func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	keyAuth, ok := s.certs.ChallengeTokenValue(token)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(keyAuth))
}

// SessionCredentials is the login response body.
type SessionCredentials struct {
	ID           uuid.UUID `json:"id"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
}

// handleLoginSSH exchanges an authenticated SSH bearer for a persisted
// session.
func (s *Server) handleLoginSSH(w http.ResponseWriter, r *http.Request) {
	sess := requestSession(r)
	created, err := s.sessions.New(r.Context(), sess.AccountID)
	if err != nil {
		logger := log.WithComponent("api")
		logger.Error().Err(err).Msg("failed to create session")
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, SessionCredentials{
		ID:           created.ID,
		Token:        created.Token,
		RefreshToken: created.RefreshToken,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := requestSession(r)
	if err := s.sessions.Delete(r.Context(), sess.Token); err != nil {
		logger := log.WithComponent("api")
		logger.Error().Err(err).Msg("failed to delete session")
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	sess := requestSession(r)
	account, err := s.store.GetAccountByID(r.Context(), sess.AccountID)
	if err != nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         account.ID,
		"name":       account.Name,
		"updated_at": account.UpdatedAt,
		"created_at": account.CreatedAt,
	})
}

func (s *Server) handleUserSSHKeys(w http.ResponseWriter, r *http.Request) {
	sess := requestSession(r)
	keys, err := s.store.ListSSHKeysByAccount(r.Context(), sess.AccountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list ssh keys")
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

// certificateResponse is a Certificate without its private key.
type certificateResponse struct {
	ID         uuid.UUID `json:"id"`
	DomainName string    `json:"domain_name"`
	ExpiresAt  time.Time `json:"expires_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Server) handleCertificates(w http.ResponseWriter, r *http.Request) {
	sess := requestSession(r)
	certs, err := s.store.ListCertificatesByOwner(r.Context(), sess.AccountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list certificates")
		return
	}
	out := make([]certificateResponse, 0, len(certs))
	for _, cert := range certs {
		out = append(out, certificateResponse{
			ID:         cert.ID,
			DomainName: cert.DomainName,
			ExpiresAt:  cert.ExpiresAt,
			UpdatedAt:  cert.UpdatedAt,
			CreatedAt:  cert.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	sess := requestSession(r)
	services, err := s.store.ListServicesByOwner(r.Context(), sess.AccountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list services")
		return
	}
	writeJSON(w, http.StatusOK, services)
}

// ownedService resolves the path's service id and checks ownership. Both a
// missing service and another owner's service read as 404.
func (s *Server) ownedService(w http.ResponseWriter, r *http.Request) *store.Service {
	sess := requestSession(r)
	serviceID, err := uuid.Parse(chi.URLParam(r, "service_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "service not found")
		return nil
	}
	service, err := s.store.GetServiceByID(r.Context(), serviceID)
	if err != nil || service.OwnerID != sess.AccountID {
		writeError(w, http.StatusNotFound, "service not found")
		return nil
	}
	return service
}

func (s *Server) handleServiceDeployments(w http.ResponseWriter, r *http.Request) {
	service := s.ownedService(w, r)
	if service == nil {
		return
	}
	deployments, err := s.store.ListDeploymentsByService(r.Context(), service.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list deployments")
		return
	}
	writeJSON(w, http.StatusOK, deployments)
}

func (s *Server) handleServiceIngresses(w http.ResponseWriter, r *http.Request) {
	service := s.ownedService(w, r)
	if service == nil {
		return
	}
	ingresses, err := s.store.ListIngressesByService(r.Context(), service.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list ingresses")
		return
	}
	writeJSON(w, http.StatusOK, ingresses)
}

// handleDeploy accepts a multipart upload with the app manifest, the content
// hash, and the tar build context, and runs the deploy pipeline. The response
// is sent once the container has started.
func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	sess := requestSession(r)
	logger := log.WithComponent("api")

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	manifest, err := app.Parse([]byte(r.FormValue("app")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid app manifest")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing deploy file")
		return
	}
	defer file.Close()
	tar, err := io.ReadAll(io.LimitReader(file, maxDeployUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read deploy file")
		return
	}

	logger.Info().
		Str("name", manifest.Name).
		Str("hash", r.FormValue("hash")).
		Str("account_id", sess.AccountID.String()).
		Msg("deploy received")

	if _, _, err := s.deployments.Deploy(r.Context(), sess.AccountID, manifest, tar); err != nil {
		logger.Error().Err(err).Str("name", manifest.Name).Msg("deploy failed")
		writeError(w, http.StatusInternalServerError, "deploy failed")
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
