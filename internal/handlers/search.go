package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/consensus/internal/models"
	"github.com/BradenHooton/consensus/internal/query"
	pkghttp "github.com/BradenHooton/consensus/pkg/http"
)

// SearchService runs SearchFilter queries per entity
type SearchService interface {
	SearchUsers(ctx context.Context, filter query.SearchFilter) (*query.Result, error)
	SearchLoginLogs(ctx context.Context, filter query.SearchFilter) (*query.Result, error)
	SearchProposals(ctx context.Context, filter query.SearchFilter) (*query.Result, error)
}

// SearchHandler serves the generic search endpoints. The body of every
// request is a SearchFilter.
type SearchHandler struct {
	service SearchService
	logger  *slog.Logger
}

func NewSearchHandler(service SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{service: service, logger: logger}
}

// Users handles POST /auth/search
func (h *SearchHandler) Users(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.service.SearchUsers, "Successfully got search user")
}

// LoginLogs handles POST /auth/log/search
func (h *SearchHandler) LoginLogs(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.service.SearchLoginLogs, "Successfully got user log.")
}

// Proposals handles POST /proposal/search
func (h *SearchHandler) Proposals(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.service.SearchProposals, "Successfully got proposal list")
}

type searchFunc func(ctx context.Context, filter query.SearchFilter) (*query.Result, error)

func (h *SearchHandler) serve(w http.ResponseWriter, r *http.Request, search searchFunc, message string) {
	body, err := readBody(r)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	filter, err := query.DecodeFilter(body)
	if err != nil {
		pkghttp.WriteServiceError(w, models.NewValidationError("filter", err.Error()))
		return
	}

	result, err := search(r.Context(), filter)
	if err != nil {
		logError(h.logger, r, err)
		pkghttp.WriteServiceError(w, err)
		return
	}
	pkghttp.WriteSuccess(w, message, result)
}
