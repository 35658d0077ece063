package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"datacatalog/api/middleware"
	"datacatalog/api/services"
	"datacatalog/db"
	"datacatalog/pkg/config"
	"datacatalog/pkg/dictization"
	"datacatalog/pkg/shared"
	"datacatalog/pkg/store"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
)

// HealthChecker reports the state of a backing service.
type HealthChecker interface {
	HealthCheck() error
}

type Handlers struct {
	db      *db.Service
	cfg     *config.Config
	catalog *services.CatalogService
	nats    HealthChecker
	started time.Time
}

// NewHandlers serves catalog actions. nats may be nil when the activity
// stream is disabled.
func NewHandlers(database *db.Service, cfg *config.Config, catalog *services.CatalogService, nats HealthChecker) *Handlers {
	return &Handlers{
		db:      database,
		cfg:     cfg,
		catalog: catalog,
		nats:    nats,
		started: time.Now(),
	}
}

// Group handlers
func (h *Handlers) GroupList(w http.ResponseWriter, r *http.Request) {
	h.groupList(w, r, false)
}

func (h *Handlers) OrganizationList(w http.ResponseWriter, r *http.Request) {
	h.groupList(w, r, true)
}

func (h *Handlers) groupList(w http.ResponseWriter, r *http.Request, organizations bool) {
	q := r.URL.Query()
	out, err := h.catalog.GroupList(r.Context(), services.GroupListRequest{
		Organizations: organizations,
		Sort:          q.Get("sort"),
		AllFields:     queryBool(q.Get("all_fields")),
	})
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, out)
}

func (h *Handlers) GroupShow(w http.ResponseWriter, r *http.Request) {
	h.groupShow(w, r, false)
}

func (h *Handlers) OrganizationShow(w http.ResponseWriter, r *http.Request) {
	h.groupShow(w, r, true)
}

func (h *Handlers) groupShow(w http.ResponseWriter, r *http.Request, organization bool) {
	id, ok := requireParam(w, r, "id")
	if !ok {
		return
	}
	g, err := h.catalog.GroupShow(r.Context(), id, organization)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, g)
}

// Package handlers
func (h *Handlers) PackageShow(w http.ResponseWriter, r *http.Request) {
	id, ok := requireParam(w, r, "id")
	if !ok {
		return
	}
	p, err := h.catalog.PackageShow(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, p)
}

func (h *Handlers) PackageActivityList(w http.ResponseWriter, r *http.Request) {
	id, ok := requireParam(w, r, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	acts, err := h.catalog.PackageActivityList(r.Context(), id, limit)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, acts)
}

// Tag handlers
func (h *Handlers) TagShow(w http.ResponseWriter, r *http.Request) {
	id, ok := requireParam(w, r, "id")
	if !ok {
		return
	}
	q := r.URL.Query()
	t, err := h.catalog.TagShow(r.Context(), id, q.Get("vocabulary_id"), queryBool(q.Get("include_datasets")))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, t)
}

func (h *Handlers) VocabularyShow(w http.ResponseWriter, r *http.Request) {
	id, ok := requireParam(w, r, "id")
	if !ok {
		return
	}
	v, err := h.catalog.VocabularyShow(r.Context(), id)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, v)
}

func (h *Handlers) ActivityShow(w http.ResponseWriter, r *http.Request) {
	id, ok := requireParam(w, r, "id")
	if !ok {
		return
	}
	a, err := h.catalog.ActivityShow(r.Context(), id, queryBool(r.URL.Query().Get("include_data")))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, a)
}

// Resource handlers
func (h *Handlers) ResourceCreate(w http.ResponseWriter, r *http.Request) {
	var req dictization.Dict
	if err := decodeBody(w, r, &req); err != nil {
		sendError(w, http.StatusBadRequest, shared.CodeInvalidRequest, err.Error())
		return
	}

	res, err := h.catalog.ResourceCreate(r.Context(), middleware.UserIDFromContext(r.Context()), req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendSuccess(w, http.StatusCreated, res)
}

// API token handlers
type apiTokenCreateRequest struct {
	Name string `json:"name"`
}

type apiTokenRevokeRequest struct {
	Token string `json:"token"`
}

func (h *Handlers) APITokenCreate(w http.ResponseWriter, r *http.Request) {
	var req apiTokenCreateRequest
	if err := decodeBody(w, r, &req); err != nil {
		sendError(w, http.StatusBadRequest, shared.CodeInvalidRequest, err.Error())
		return
	}

	token, err := h.catalog.APITokenCreate(r.Context(), middleware.UserIDFromContext(r.Context()), req.Name)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendSuccess(w, http.StatusCreated, map[string]string{"token": token})
}

func (h *Handlers) APITokenRevoke(w http.ResponseWriter, r *http.Request) {
	var req apiTokenRevokeRequest
	if err := decodeBody(w, r, &req); err != nil {
		sendError(w, http.StatusBadRequest, shared.CodeInvalidRequest, err.Error())
		return
	}
	if req.Token == "" {
		sendError(w, http.StatusBadRequest, shared.CodeInvalidRequest, "token is required")
		return
	}

	if err := h.catalog.APITokenRevoke(r.Context(), middleware.UserIDFromContext(r.Context()), req.Token); err != nil {
		sendServiceError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, map[string]string{"message": "Token revoked"})
}

// Health check
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := shared.HealthStatus{
		Status:    "healthy",
		Service:   shared.EventSource,
		Uptime:    time.Since(h.started),
		Timestamp: time.Now(),
		Details:   make(map[string]string),
	}

	if err := h.db.Health(); err != nil {
		health.Status = "unhealthy"
		health.Details["database"] = "unhealthy: " + err.Error()
	} else {
		health.Details["database"] = "healthy"
		health.Details["database_open_connections"] = strconv.Itoa(h.db.GetStats().OpenConnections)
	}

	if h.nats != nil {
		if err := h.nats.HealthCheck(); err != nil {
			health.Status = "unhealthy"
			health.Details["nats"] = "unhealthy: " + err.Error()
		} else {
			health.Details["nats"] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	sendSuccess(w, statusCode, health)
}

// Helper functions
func requireParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		sendError(w, http.StatusBadRequest, shared.CodeInvalidRequest, name+" is required")
		return "", false
	}
	return v, true
}

func queryBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

// maxBodyBytes caps action request bodies.
const maxBodyBytes = 1 << 20

// decodeBody keeps numbers as json.Number so integer columns round-trip.
// An empty body decodes to the zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(http.MaxBytesReader(w, r.Body, maxBodyBytes)); err != nil {
		return err
	}
	if buf.Len() == 0 {
		return nil
	}
	dec := json.NewDecoder(&buf)
	dec.UseNumber()
	return dec.Decode(v)
}

func sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		sendError(w, http.StatusNotFound, shared.CodeNotFound, err.Error())
	case errors.Is(err, services.ErrForbidden):
		sendError(w, http.StatusForbidden, shared.CodeForbidden, err.Error())
	case errors.Is(err, services.ErrInvalidSort),
		errors.Is(err, dictization.ErrMissingPackage),
		errors.Is(err, dictization.ErrInvalidField):
		sendError(w, http.StatusBadRequest, shared.CodeInvalidRequest, err.Error())
	default:
		log.Error("Request failed", "err", err)
		sendError(w, http.StatusInternalServerError, shared.CodeInternal, "Internal error")
	}
}

func sendSuccess(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := shared.Response{
		Success: true,
		Data:    data,
	}

	json.NewEncoder(w).Encode(response)
}

func sendError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := shared.Response{
		Success: false,
		Error: &shared.Error{
			Code:    code,
			Message: message,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// Routes builds the router. Reads are public; writes need a token.
func (h *Handlers) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger)
	r.Use(middleware.CORS)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusNotFound, shared.CodeNotFound, "Unknown action")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	r.Get("/health", h.HealthCheck)

	r.Route("/api/3/action", func(r chi.Router) {
		r.Use(middleware.TokenAuth(h.db.DB, h.cfg))

		r.Get("/group_list", h.GroupList)
		r.Get("/group_show", h.GroupShow)
		r.Get("/organization_list", h.OrganizationList)
		r.Get("/organization_show", h.OrganizationShow)
		r.Get("/package_show", h.PackageShow)
		r.Get("/package_activity_list", h.PackageActivityList)
		r.Get("/tag_show", h.TagShow)
		r.Get("/vocabulary_show", h.VocabularyShow)
		r.Get("/activity_show", h.ActivityShow)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)
			r.Post("/resource_create", h.ResourceCreate)
			r.Post("/api_token_create", h.APITokenCreate)
			r.Post("/api_token_revoke", h.APITokenRevoke)
		})
	})

	return r
}
