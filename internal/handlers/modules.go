package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xelth-com/modspace/internal/registry"
	"github.com/xelth-com/modspace/internal/ui"
	"github.com/xelth-com/modspace/internal/workspace"
)

// signalRequest is the optional body of POST /api/signals/{signal}
type signalRequest struct {
	Module  string          `json:"module"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// listModules returns the registered modules
func (r *Router) listModules(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"current": r.ws.CurrentModule(),
		"modules": r.ws.Registry().List(),
	})
}

// activateModule makes {id} the current module
func (r *Router) activateModule(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	err := r.ws.Activate(req.Context(), id)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{"current": id})
	case errors.Is(err, registry.ErrNotRegistered):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrSuperseded):
		respondError(w, http.StatusConflict, err.Error())
	default:
		r.log.Error("activation failed", zap.String("module", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// moduleAction routes an action to the current module instance
func (r *Router) moduleAction(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)

	payload, err := readOptionalJSON(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	err = r.ws.HandleAction(req.Context(), vars["id"], vars["action"], payload)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, workspace.ErrModuleNotActive):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, workspace.ErrNoActions):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	}
}

// signal delivers a browser signal without the websocket. The unload
// signal arrives here through navigator.sendBeacon.
func (r *Router) signal(w http.ResponseWriter, req *http.Request) {
	body, err := readOptionalJSON(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	var sr signalRequest
	if body != nil {
		if err := json.Unmarshal(body, &sr); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}

	sig := ui.Signal{
		Type:    mux.Vars(req)["signal"],
		Module:  sr.Module,
		Action:  sr.Action,
		Payload: sr.Payload,
	}
	err = r.ws.HandleSignal(req.Context(), sig)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, workspace.ErrUnknownSignal):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrNotRegistered):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	}
}

// readOptionalJSON returns the request body, nil when it is empty, or an
// error when it is not JSON
func readOptionalJSON(req *http.Request) (json.RawMessage, error) {
	if req.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, maxImportBytes))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, errors.New("body is not JSON")
	}
	return body, nil
}
