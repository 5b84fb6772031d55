package routes

import (
	"net/http"

	"github.com/BradenHooton/consensus/internal/handlers"
	"github.com/go-chi/chi/v5"
)

// Route is one entry of the HTTP surface
type Route struct {
	Method  string
	Path    string
	Handler http.Handler
	Auth    bool // requires a resolved session token
	Limited bool // rate limited per client address
}

// Handlers groups the handlers mounted by Table. Metrics may be nil.
type Handlers struct {
	Auth    *handlers.AuthHandler
	Search  *handlers.SearchHandler
	Health  *handlers.HealthHandler
	Metrics http.Handler
}

// Table returns the full route table. It is built once at startup.
func Table(h Handlers) []Route {
	table := []Route{
		{Method: http.MethodPost, Path: "/auth/login", Handler: http.HandlerFunc(h.Auth.Login), Limited: true},
		{Method: http.MethodGet, Path: "/auth/userlist", Handler: http.HandlerFunc(h.Auth.UserList), Auth: true},
		{Method: http.MethodPost, Path: "/auth/create-user", Handler: http.HandlerFunc(h.Auth.CreateUser), Auth: true},
		{Method: http.MethodPut, Path: "/auth/update-user/{id}", Handler: http.HandlerFunc(h.Auth.UpdateUser), Auth: true},
		{Method: http.MethodDelete, Path: "/auth/delete-user/{id}", Handler: http.HandlerFunc(h.Auth.DeleteUser), Auth: true},
		{Method: http.MethodPost, Path: "/auth/forgot-password", Handler: http.HandlerFunc(h.Auth.ForgotPassword), Limited: true},
		{Method: http.MethodPut, Path: "/auth/change-password", Handler: http.HandlerFunc(h.Auth.ChangePassword), Auth: true},
		{Method: http.MethodGet, Path: "/auth/logout", Handler: http.HandlerFunc(h.Auth.Logout), Auth: true},
		{Method: http.MethodPost, Path: "/auth/logout-all", Handler: http.HandlerFunc(h.Auth.LogoutAll), Auth: true},
		{Method: http.MethodPost, Path: "/auth/edit-profile", Handler: http.HandlerFunc(h.Auth.EditProfile), Auth: true},
		{Method: http.MethodPost, Path: "/auth/search", Handler: http.HandlerFunc(h.Search.Users), Auth: true},
		{Method: http.MethodPost, Path: "/auth/log/search", Handler: http.HandlerFunc(h.Search.LoginLogs), Auth: true},
		{Method: http.MethodPost, Path: "/proposal/search", Handler: http.HandlerFunc(h.Search.Proposals), Auth: true},
		{Method: http.MethodGet, Path: "/health", Handler: http.HandlerFunc(h.Health.Health)},
	}

	if h.Metrics != nil {
		table = append(table, Route{Method: http.MethodGet, Path: "/metrics", Handler: h.Metrics})
	}
	return table
}

// Register mounts every route on router. Protected routes are wrapped with
// authenticate. Each limited route gets its own limiter from newLimiter, so
// limited routes never share a budget.
func Register(router chi.Router, table []Route, authenticate func(http.Handler) http.Handler, newLimiter func() func(http.Handler) http.Handler) {
	for _, route := range table {
		handler := route.Handler
		if route.Auth {
			handler = authenticate(handler)
		}
		if route.Limited && newLimiter != nil {
			handler = newLimiter()(handler)
		}
		router.Method(route.Method, route.Path, handler)
	}
}
