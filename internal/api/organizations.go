package api

import (
	"net/http"

	"petadopt/internal/service"

	"github.com/go-chi/chi/v5"
)

func (d Dependencies) createOrganization(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	var in service.OrganizationInput
	if !decodeJSON(w, r, &in, d.Log) {
		return
	}
	org, err := d.Organizations.Create(r.Context(), sess, in)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

// listOrganizations returns the organizations the caller belongs to.
func (d Dependencies) listOrganizations(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	orgs, err := d.Organizations.ListForMember(r.Context(), sess)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, orgs)
}

func (d Dependencies) getOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := d.Organizations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (d Dependencies) updateOrganization(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	var in service.OrganizationInput
	if !decodeJSON(w, r, &in, d.Log) {
		return
	}
	org, err := d.Organizations.Update(r.Context(), sess, chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (d Dependencies) addMember(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	var body struct {
		UserID string `json:"userId"`
	}
	if !decodeJSON(w, r, &body, d.Log) {
		return
	}
	org, err := d.Organizations.AddMember(r.Context(), sess, chi.URLParam(r, "id"), body.UserID)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (d Dependencies) removeMember(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	org, err := d.Organizations.RemoveMember(r.Context(), sess, chi.URLParam(r, "id"), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, org)
}
