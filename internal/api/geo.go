package api

import (
	"errors"
	"net/http"

	"petadopt/internal/geo"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// listStates never fails: the client falls back to a static list.
func (d Dependencies) listStates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Geo.States(r.Context()))
}

func (d Dependencies) listCities(w http.ResponseWriter, r *http.Request) {
	state := chi.URLParam(r, "id")
	cities, err := d.Geo.Cities(r.Context(), state)
	switch {
	case errors.Is(err, geo.ErrUnknownState):
		WriteError(w, http.StatusNotFound, "not_found", err.Error(), d.Log)
	case err != nil:
		d.Log.Warn("City lookup failed", zap.String("state", state), zap.Error(err))
		WriteError(w, http.StatusBadGateway, "upstream_failed", "City lookup is temporarily unavailable", d.Log)
	default:
		writeJSON(w, http.StatusOK, cities)
	}
}
