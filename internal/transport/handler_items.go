package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/skyhangar/flightline/internal/engine"
	"github.com/skyhangar/flightline/internal/observability"
	"github.com/skyhangar/flightline/model"
)

func handleItemCreate(eng *engine.Engine, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		if !CapabilitiesFrom(r.Context()).Has("items:create:execute") {
			WriteForbidden(w, "missing capability items:create:execute")
			return
		}

		var body struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			TemplateID  string `json:"template_id"`
			Priority    string `json:"priority"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		item, err := eng.CreateItem(r.Context(), engine.CreateParams{
			Title:       body.Title,
			Description: body.Description,
			TemplateID:  body.TemplateID,
			Priority:    body.Priority,
			CreatedBy:   rctx.SubjectID,
		})
		if err != nil {
			WriteError(w, err)
			return
		}

		if metrics != nil {
			metrics.RecordItemCreated(item.TemplateID)
		}
		WriteJSON(w, http.StatusCreated, item)
	}
}

func handleItemList(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !CapabilitiesFrom(r.Context()).Has("items:list:view") {
			WriteForbidden(w, "missing capability items:list:view")
			return
		}

		filters := model.WorkItemFilters{
			TemplateID: r.URL.Query().Get("template_id"),
			Status:     r.URL.Query().Get("status"),
			Limit:      queryInt(r, "limit", 20),
			Offset:     queryInt(r, "offset", 0),
		}

		summaries, err := eng.ListItems(r.Context(), filters)
		if err != nil {
			WriteError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"data":   summaries,
			"limit":  filters.Limit,
			"offset": filters.Offset,
		})
	}
}

func handleItemGet(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !CapabilitiesFrom(r.Context()).Has("items:detail:view") {
			WriteForbidden(w, "missing capability items:detail:view")
			return
		}

		item, err := eng.GetItem(r.Context(), chi.URLParam(r, "itemId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, item)
	}
}

func handleItemActions(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !CapabilitiesFrom(r.Context()).Has("items:detail:view") {
			WriteForbidden(w, "missing capability items:detail:view")
			return
		}

		actions, err := eng.GetAvailableActions(r.Context(), chi.URLParam(r, "itemId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"available_actions": actions,
		})
	}
}

func handleItemHistory(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !CapabilitiesFrom(r.Context()).Has("items:history:view") {
			WriteForbidden(w, "missing capability items:history:view")
			return
		}

		records, err := eng.GetHistory(r.Context(), chi.URLParam(r, "itemId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data": records,
		})
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
