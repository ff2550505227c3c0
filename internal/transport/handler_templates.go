package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skyhangar/flightline/internal/template"
)

func handleTemplateList(registry *template.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !CapabilitiesFrom(r.Context()).Has("templates:list:view") {
			WriteForbidden(w, "missing capability templates:list:view")
			return
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"data":     registry.All(),
			"checksum": registry.Checksum(),
		})
	}
}

func handleTemplateGet(registry *template.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !CapabilitiesFrom(r.Context()).Has("templates:detail:view") {
			WriteForbidden(w, "missing capability templates:detail:view")
			return
		}

		templateID := chi.URLParam(r, "templateId")
		tmpl, ok := registry.Get(templateID)
		if !ok {
			WriteNotFound(w, "template "+templateID+" not found")
			return
		}
		WriteJSON(w, http.StatusOK, tmpl)
	}
}
