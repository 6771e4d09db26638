package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xelth-com/modspace/internal/workspace"
)

// exportAll downloads a complete-system backup
func (r *Router) exportAll(w http.ResponseWriter, req *http.Request) {
	exp, err := r.ws.ExportAll(req.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondDownload(w, fmt.Sprintf("framework-modular-backup-%s.json", dateOf(exp.ExportDate)), exp)
}

// exportModule downloads one module's document; "current" exports the
// active module
func (r *Router) exportModule(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	if id == "current" {
		id = ""
	}
	exp, err := r.ws.ExportModule(req.Context(), id)
	if err != nil {
		if errors.Is(err, workspace.ErrNoCurrentModule) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondDownload(w, fmt.Sprintf("%s-data-%s.json", exp.Module, dateOf(exp.ExportDate)), exp)
}

// importData restores a backup produced by exportAll or exportModule
func (r *Router) importData(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxImportBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "Import file too large")
		return
	}

	res, err := r.ws.Import(req.Context(), body)
	if err != nil {
		if errors.Is(err, workspace.ErrMalformedImport) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// dateOf returns the YYYY-MM-DD prefix of an RFC 3339 timestamp
func dateOf(ts string) string {
	if len(ts) < len("2006-01-02") {
		return ts
	}
	return ts[:len("2006-01-02")]
}

func respondDownload(w http.ResponseWriter, filename string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
