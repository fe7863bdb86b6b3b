package api

import (
	"encoding/json"
	"net/http"

	"petadopt/internal/model"
	"petadopt/internal/service"

	"github.com/go-chi/chi/v5"
)

type decisionRequest struct {
	Status          model.RequestStatus `json:"status"`
	ResponseMessage string              `json:"responseMessage"`
}

// createAdoptionRequest takes a multipart form: the questionnaire as JSON in
// the "form" field and the environment photos as "photos" files.
func (d Dependencies) createAdoptionRequest(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	if !isMultipart(r) {
		WriteError(w, http.StatusUnsupportedMediaType, "invalid_request", "Expected multipart/form-data", d.Log)
		return
	}
	if err := d.parseMultipart(w, r); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), d.Log)
		return
	}

	var in service.CreateAdoptionInput
	if err := json.Unmarshal([]byte(r.FormValue("form")), &in); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid form field", d.Log)
		return
	}
	photos, closeAll, err := formUploads(r, "photos")
	defer closeAll()
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), d.Log)
		return
	}

	req, err := d.Adoptions.CreateRequest(r.Context(), sess, in, photos)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (d Dependencies) listMyAdoptionRequests(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	reqs, err := d.Adoptions.ListForAdopter(r.Context(), sess)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (d Dependencies) listOrganizationAdoptionRequests(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	reqs, err := d.Adoptions.ListForOrganization(r.Context(), sess)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (d Dependencies) getAdoptionRequest(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	req, err := d.Adoptions.Get(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (d Dependencies) decideAdoptionRequest(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	var body decisionRequest
	if !decodeJSON(w, r, &body, d.Log) {
		return
	}
	req, err := d.Adoptions.UpdateStatus(r.Context(), sess, chi.URLParam(r, "id"), body.Status, body.ResponseMessage)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (d Dependencies) withdrawAdoptionRequest(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	if err := d.Adoptions.Withdraw(r.Context(), sess, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
