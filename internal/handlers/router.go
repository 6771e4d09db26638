package handlers

import (
	"encoding/json"
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xelth-com/modspace/internal/buildinfo"
	"github.com/xelth-com/modspace/internal/config"
	"github.com/xelth-com/modspace/internal/middleware"
	"github.com/xelth-com/modspace/internal/ui"
	"github.com/xelth-com/modspace/internal/workspace"
)

// maxImportBytes bounds an uploaded backup
const maxImportBytes = 32 << 20

// Options wires a Router
type Options struct {
	Workspace *workspace.Workspace
	Hub       *ui.Hub
	// Gatherer backs /metrics; nil skips the route
	Gatherer prometheus.Gatherer
	// Static serves the browser shell at /; nil skips the route
	Static fs.FS
	Access config.AccessConfig
	Logger *zap.Logger
}

// Router wraps the mux router and the workspace it exposes
type Router struct {
	*mux.Router
	ws     *workspace.Workspace
	hub    *ui.Hub
	access config.AccessConfig
	log    *zap.Logger
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(opts Options) *Router {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{
		Router: mux.NewRouter(),
		ws:     opts.Workspace,
		hub:    opts.Hub,
		access: opts.Access,
		log:    log.Named("http"),
	}

	r.Use(middleware.SecurityHeaders(middleware.DefaultHeaders()))
	r.Use(middleware.RequestLogger(log))

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", r.login).Methods("POST")
	auth.HandleFunc("/logout", r.logout).Methods("POST")

	guard := middleware.RequireToken(opts.Access.TokenSecret)

	// API routes (protected)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(guard)
	api.HandleFunc("/status", r.getStatus).Methods("GET")
	api.HandleFunc("/modules", r.listModules).Methods("GET")
	api.HandleFunc("/modules/{id}/activate", r.activateModule).Methods("POST")
	api.HandleFunc("/modules/{id}/actions/{action}", r.moduleAction).Methods("POST")
	api.HandleFunc("/data", r.clearAll).Methods("DELETE")
	api.HandleFunc("/data/{id}", r.readData).Methods("GET")
	api.HandleFunc("/data/{id}", r.writeData).Methods("POST")
	api.HandleFunc("/sync", r.forceSync).Methods("POST")
	api.HandleFunc("/signals/{signal}", r.signal).Methods("POST")
	api.HandleFunc("/export", r.exportAll).Methods("GET")
	api.HandleFunc("/export/{id}", r.exportModule).Methods("GET")
	api.HandleFunc("/import", r.importData).Methods("POST")
	api.HandleFunc("/workmode", r.getWorkMode).Methods("GET")
	api.HandleFunc("/workmode", r.setWorkMode).Methods("PUT")

	if r.hub != nil {
		r.Handle("/ws", guard(http.HandlerFunc(r.hub.ServeWS))).Methods("GET")
	}
	if opts.Gatherer != nil {
		r.Handle("/metrics", guard(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))).Methods("GET")
	}

	// Static shell
	if opts.Static != nil {
		r.PathPrefix("/").Handler(http.FileServer(http.FS(opts.Static)))
	}

	return r
}

// healthCheck returns the health status of the shell
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"online":  r.ws.IsOnline(),
		"version": buildinfo.Version,
	})
}

// getStatus returns the synchronization status
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, r.ws.Status())
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
