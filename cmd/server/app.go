package main

import (
	"net/http"

	"github.com/diewo77/go-sheets/internal/auth"
	"github.com/diewo77/go-sheets/internal/config"
	"github.com/diewo77/go-sheets/internal/gate"
	"github.com/diewo77/go-sheets/internal/handlers"
	"github.com/diewo77/go-sheets/internal/httpx"
	"github.com/diewo77/go-sheets/internal/notify"
	"github.com/diewo77/go-sheets/internal/policy"
	"github.com/diewo77/go-sheets/internal/services"
	"gorm.io/gorm"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux  *http.ServeMux
	db   *gorm.DB
	gate *gate.Gate
}

// NewApp creates a new application with all routes configured.
func NewApp(db *gorm.DB, cfg config.Config, dispatcher *notify.Dispatcher) *App {
	g := gate.New(policy.NewDBProfileResolver(db))
	docSvc := services.NewDocumentService(db, cfg.DataDir)
	crSvc := services.NewChangeRequestService(db, g, dispatcher)

	app := &App{mux: http.NewServeMux(), db: db, gate: g}
	app.setupRoutes(
		handlers.NewAuthHandler(db),
		handlers.NewDocumentHandler(docSvc, crSvc),
		handlers.NewChangeRequestHandler(crSvc, g),
	)
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	auth.Middleware(a.mux).ServeHTTP(w, r)
}

func (a *App) setupRoutes(ah *handlers.AuthHandler, dh *handlers.DocumentHandler, crh *handlers.ChangeRequestHandler) {
	// Public routes (no auth required)
	a.mux.HandleFunc("POST /login", ah.Login)
	a.mux.HandleFunc("POST /signup", ah.Signup)
	a.mux.HandleFunc("POST /logout", ah.Logout)

	// Documents - require auth + specific permissions
	a.mux.Handle("GET /documents",
		a.protected(services.ResourceDocument, gate.ActionList, dh.List))
	a.mux.Handle("POST /documents",
		a.protected(services.ResourceDocument, gate.ActionCreate, dh.Create))
	a.mux.Handle("POST /documents/worksheets",
		a.protected(services.ResourceDocument, gate.ActionCreate, dh.Worksheets))
	a.mux.Handle("GET /documents/{id}",
		a.protected(services.ResourceDocument, gate.ActionView, dh.View))
	a.mux.Handle("POST /documents/{id}",
		a.protected(services.ResourceDocument, gate.ActionUpdate, dh.Update))
	a.mux.Handle("GET /documents/{id}/export",
		a.protected(services.ResourceDocument, gate.ActionExport, dh.Export))

	// Change requests. Review permission checks live in the handler so
	// policy rejections stay distinguishable from missing permissions.
	a.mux.Handle("POST /change-requests",
		a.protected(services.ResourceChangeRequest, gate.ActionCreate, crh.Create))
	a.mux.Handle("POST /change-requests/{id}/accept",
		auth.RequireAuth(http.HandlerFunc(crh.Accept)))
	a.mux.Handle("POST /change-requests/{id}/decline",
		auth.RequireAuth(http.HandlerFunc(crh.Decline)))
	a.mux.Handle("POST /change-requests/{id}/revoke",
		auth.RequireAuth(http.HandlerFunc(crh.Revoke)))
	a.mux.Handle("GET /cells/{id}/requests",
		a.protected(services.ResourceChangeRequest, gate.ActionView, crh.ForCell))
}

// protected wraps a handler with authentication and a permission check.
func (a *App) protected(resourceType string, action gate.Action, h http.HandlerFunc) http.Handler {
	return auth.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserIDFromContext(r.Context())
		if err := a.gate.Authorize(r.Context(), userID, action, resourceType); err != nil {
			httpx.JSONError(w, http.StatusForbidden, httpx.CodeForbidden, nil)
			return
		}
		h(w, r)
	}))
}
