package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	syncengine "github.com/xelth-com/modspace/internal/sync"
	"github.com/xelth-com/modspace/internal/workspace"
)

// readData returns the document of {id}, cached or fetched
func (r *Router) readData(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	doc, err := r.ws.Read(req.Context(), id)
	if err != nil {
		r.log.Error("read failed", zap.String("module", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

// writeData stores the body as the document of {id}
func (r *Router) writeData(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	doc, err := readOptionalJSON(req)
	if err != nil || doc == nil {
		respondError(w, http.StatusBadRequest, syncengine.ErrInvalidDocument.Error())
		return
	}

	if err := r.ws.Write(req.Context(), id, doc); err != nil {
		if errors.Is(err, syncengine.ErrInvalidDocument) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "saved",
		"pending_count": r.ws.PendingCount(),
	})
}

// clearAll wipes server and local data
func (r *Router) clearAll(w http.ResponseWriter, req *http.Request) {
	res, err := r.ws.ClearAll(req.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// forceSync pushes every pending module now
func (r *Router) forceSync(w http.ResponseWriter, req *http.Request) {
	n, err := r.ws.ForceSync(req.Context())
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"synced":        n,
			"pending_count": r.ws.PendingCount(),
		})
	case errors.Is(err, syncengine.ErrOffline):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, syncengine.ErrSyncInProgress):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// getWorkMode returns the stored work mode
func (r *Router) getWorkMode(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"mode": r.ws.WorkMode()})
}

// setWorkMode stores a work mode preference
func (r *Router) setWorkMode(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := r.ws.SetWorkMode(body.Mode); err != nil {
		if errors.Is(err, workspace.ErrInvalidWorkMode) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"mode": r.ws.WorkMode()})
}
