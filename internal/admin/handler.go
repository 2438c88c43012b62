package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
)

const usersPath = "/admin/users"

// Handler serves the admin endpoints. The caller identity comes from a header
// set by the authenticating proxy in front of the service.
type Handler struct {
	service        *Service
	authorizer     *Authorizer
	identityHeader string
	logger         *zerolog.Logger
}

func NewHandler(service *Service, authorizer *Authorizer, identityHeader string, logger *zerolog.Logger) *Handler {
	return &Handler{
		service:        service,
		authorizer:     authorizer,
		identityHeader: identityHeader,
		logger:         logger,
	}
}

// Register mounts the admin routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(usersPath, h.listUsers)
	mux.HandleFunc(usersPath+"/", h.userDetails)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) userDetails(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, usersPath+"/"), "/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user id"})
		return
	}

	details, err := h.service.UserDetails(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, details)
}

func (h *Handler) allow(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})

		return false
	}

	err := h.authorizer.Authorize(r.Header.Get(h.identityHeader))

	switch {
	case err == nil:
		return true
	case errors.Is(err, coreerrors.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
	default:
		h.logger.Warn().Str("identity", r.Header.Get(h.identityHeader)).Msg("admin access denied")
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	}

	return false
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, coreerrors.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	h.logger.Error().Err(err).Msg("admin request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // response already committed
}
