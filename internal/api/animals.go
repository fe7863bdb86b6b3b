package api

import (
	"encoding/json"
	"net/http"

	"petadopt/internal/model"
	"petadopt/internal/service"
	"petadopt/internal/storage"
	"petadopt/internal/store"

	"github.com/go-chi/chi/v5"
)

func (d Dependencies) searchAnimals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	animals, err := d.Animals.Search(r.Context(), store.AnimalFilter{
		Species:        q.Get("species"),
		Sex:            model.Sex(q.Get("sex")),
		Status:         model.AnimalStatus(q.Get("status")),
		Name:           q.Get("name"),
		OrganizationID: q.Get("organizationId"),
	})
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, animals)
}

func (d Dependencies) getAnimal(w http.ResponseWriter, r *http.Request) {
	animal, err := d.Animals.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, animal)
}

// readAnimal accepts either a JSON body or a multipart form with an "animal"
// JSON field and an optional "photo" file. The returned func releases the
// photo and must be called once the handler is done with it.
func (d Dependencies) readAnimal(w http.ResponseWriter, r *http.Request) (service.AnimalInput, *storage.Upload, func(), bool) {
	var in service.AnimalInput
	if !isMultipart(r) {
		return in, nil, func() {}, decodeJSON(w, r, &in, d.Log)
	}

	if err := d.parseMultipart(w, r); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), d.Log)
		return in, nil, func() {}, false
	}
	if err := json.Unmarshal([]byte(r.FormValue("animal")), &in); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid animal field", d.Log)
		return in, nil, func() {}, false
	}
	photos, closeAll, err := formUploads(r, "photo")
	if err != nil {
		closeAll()
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), d.Log)
		return in, nil, func() {}, false
	}
	switch len(photos) {
	case 0:
		return in, nil, closeAll, true
	case 1:
		return in, &photos[0], closeAll, true
	default:
		closeAll()
		WriteError(w, http.StatusBadRequest, "invalid_request", "At most one photo is accepted", d.Log)
		return in, nil, func() {}, false
	}
}

func (d Dependencies) createAnimal(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	in, photo, release, ok := d.readAnimal(w, r)
	if !ok {
		return
	}
	defer release()
	animal, err := d.Animals.Create(r.Context(), sess, in, photo)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusCreated, animal)
}

func (d Dependencies) updateAnimal(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	in, photo, release, ok := d.readAnimal(w, r)
	if !ok {
		return
	}
	defer release()
	animal, err := d.Animals.Update(r.Context(), sess, chi.URLParam(r, "id"), in, photo)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, animal)
}

func (d Dependencies) setAnimalStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	var body struct {
		Status model.AnimalStatus `json:"status"`
	}
	if !decodeJSON(w, r, &body, d.Log) {
		return
	}
	animal, err := d.Animals.SetStatus(r.Context(), sess, chi.URLParam(r, "id"), body.Status)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, animal)
}

func (d Dependencies) deleteAnimal(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	if err := d.Animals.Delete(r.Context(), sess, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d Dependencies) listProcedures(w http.ResponseWriter, r *http.Request) {
	procs, err := d.Procedures.ListForAnimal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, procs)
}

func (d Dependencies) createProcedure(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	var in service.ProcedureInput
	if !decodeJSON(w, r, &in, d.Log) {
		return
	}
	p, err := d.Procedures.Create(r.Context(), sess, chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (d Dependencies) deleteProcedure(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	if err := d.Procedures.Delete(r.Context(), sess, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
