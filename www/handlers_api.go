package www

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// --- Health ---

func (h *Handlers) apiHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":     "ok",
		"tags":       h.engine.Registry().Count(),
		"publishers": h.engine.Publishers().Statuses(),
	}
	if b := h.engine.Bridge(); b != nil {
		resp["opcua_servers"] = b.ServerStates()
	}
	if a := h.engine.Alarms(); a != nil {
		resp["active_alarms"] = len(a.Active())
	}
	writeJSON(w, resp)
}

// --- Tags ---

func (h *Handlers) apiListTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Registry().Snapshot())
}

func (h *Handlers) apiGetTag(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	state, ok := h.engine.Registry().Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "tag not found")
		return
	}
	writeJSON(w, state)
}

func (h *Handlers) apiWriteTag(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req struct {
		Value interface{} `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.engine.WriteTag(name, req.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// --- Alarms ---

func (h *Handlers) apiActiveAlarms(w http.ResponseWriter, r *http.Request) {
	a := h.engine.Alarms()
	if a == nil {
		writeError(w, http.StatusNotFound, "alarms disabled")
		return
	}
	writeJSON(w, a.Active())
}

func (h *Handlers) apiAlarmHistory(w http.ResponseWriter, r *http.Request) {
	a := h.engine.Alarms()
	if a == nil {
		writeError(w, http.StatusNotFound, "alarms disabled")
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	// source=db reads the durable trail: deeper than the in-memory
	// ring and it survives restarts.
	if r.URL.Query().Get("source") == "db" {
		db := h.engine.DB()
		if db == nil {
			writeError(w, http.StatusNotFound, "alarm history database not configured")
			return
		}
		events, err := db.ListAlarmEvents(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, events)
		return
	}
	writeJSON(w, a.History(limit))
}

func (h *Handlers) apiAcknowledgeAlarm(w http.ResponseWriter, r *http.Request) {
	a := h.engine.Alarms()
	if a == nil {
		writeError(w, http.StatusNotFound, "alarms disabled")
		return
	}
	rule := chi.URLParam(r, "rule")
	var req struct {
		User string `json:"user"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	if req.User == "" {
		req.User = "operator"
	}
	if !a.Acknowledge(rule, req.User) {
		writeError(w, http.StatusNotFound, "no active alarm for rule")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// --- Publishers ---

func (h *Handlers) apiListPublishers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Publishers().Statuses())
}

func (h *Handlers) apiEnablePublisher(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.engine.EnablePublisher(name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiDisablePublisher(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	h.engine.DisablePublisher(name)
	writeJSON(w, map[string]string{"status": "ok"})
}
