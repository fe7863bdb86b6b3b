// Package memory is an in-process store.Store used by tests and by the
// service when run with STORE_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"petadopt/internal/model"
	"petadopt/internal/store"
)

type Store struct {
	mu         sync.RWMutex
	users      map[string]model.User
	orgs       map[string]model.Organization
	animals    map[string]model.Animal
	procedures map[string]model.Procedure
	requests   map[string]model.AdoptionRequest
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:      make(map[string]model.User),
		orgs:       make(map[string]model.Organization),
		animals:    make(map[string]model.Animal),
		procedures: make(map[string]model.Procedure),
		requests:   make(map[string]model.AdoptionRequest),
	}
}

// Users

func (s *Store) CreateUser(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return store.ErrConflict
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("users_email_key: %w", store.ErrConflict)
		}
	}
	u.Email = strings.ToLower(u.Email)
	s.users[u.ID] = u
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return model.User{}, store.ErrNotFound
}

// Organizations

func cloneOrg(o model.Organization) model.Organization {
	o.MemberIDs = append([]string(nil), o.MemberIDs...)
	return o
}

func (s *Store) CreateOrganization(_ context.Context, o model.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[o.ID]; ok {
		return store.ErrConflict
	}
	s.orgs[o.ID] = cloneOrg(o)
	return nil
}

func (s *Store) GetOrganization(_ context.Context, id string) (model.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orgs[id]
	if !ok {
		return model.Organization{}, store.ErrNotFound
	}
	return cloneOrg(o), nil
}

func (s *Store) ListOrganizationsForMember(_ context.Context, userID string) ([]model.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Organization, 0)
	for _, o := range s.orgs {
		if o.HasMember(userID) {
			out = append(out, cloneOrg(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdateOrganization(_ context.Context, o model.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orgs[o.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.Name = o.Name
	cur.Contact = o.Contact
	cur.Address = o.Address
	cur.Participants = o.Participants
	cur.UpdatedAt = o.UpdatedAt
	s.orgs[o.ID] = cur
	return nil
}

func (s *Store) AddOrganizationMember(_ context.Context, organizationID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[organizationID]
	if !ok {
		return store.ErrNotFound
	}
	if !o.HasMember(userID) {
		o.MemberIDs = append(o.MemberIDs, userID)
	}
	o.UpdatedAt = at
	s.orgs[organizationID] = o
	return nil
}

func (s *Store) RemoveOrganizationMember(_ context.Context, organizationID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[organizationID]
	if !ok {
		return store.ErrNotFound
	}
	if !o.HasMember(userID) {
		return fmt.Errorf("member %s: %w", userID, store.ErrNotFound)
	}
	if len(o.MemberIDs) <= 1 {
		return fmt.Errorf("organization must keep at least one member: %w", store.ErrConflict)
	}
	members := make([]string, 0, len(o.MemberIDs)-1)
	for _, id := range o.MemberIDs {
		if id != userID {
			members = append(members, id)
		}
	}
	o.MemberIDs = members
	o.UpdatedAt = at
	s.orgs[organizationID] = o
	return nil
}

// Animals

func (s *Store) CreateAnimal(_ context.Context, a model.Animal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.animals[a.ID]; ok {
		return store.ErrConflict
	}
	s.animals[a.ID] = a
	return nil
}

func (s *Store) GetAnimal(_ context.Context, id string) (model.Animal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.animals[id]
	if !ok {
		return model.Animal{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) UpdateAnimal(_ context.Context, a model.Animal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.animals[a.ID]
	if !ok {
		return store.ErrNotFound
	}
	a.OrganizationID = cur.OrganizationID
	a.CreatedAt = cur.CreatedAt
	s.animals[a.ID] = a
	return nil
}

func (s *Store) SetAnimalStatus(_ context.Context, id string, status model.AnimalStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.animals[id]
	if !ok {
		return store.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = at
	s.animals[id] = a
	return nil
}

func (s *Store) DeleteAnimal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.animals[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.animals, id)
	for pid, p := range s.procedures {
		if p.AnimalID == id {
			delete(s.procedures, pid)
		}
	}
	return nil
}

func (s *Store) SearchAnimals(_ context.Context, f store.AnimalFilter) ([]model.Animal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name := strings.ToLower(strings.TrimSpace(f.Name))
	out := make([]model.Animal, 0)
	for _, a := range s.animals {
		if f.Species != "" && !strings.EqualFold(a.Species, f.Species) {
			continue
		}
		if f.Sex != "" && a.Sex != f.Sex {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.OrganizationID != "" && !a.OwnedBy(f.OrganizationID) {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(a.Name), name) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		ni, nj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if ni == nj {
			return out[i].ID < out[j].ID
		}
		return ni < nj
	})
	return out, nil
}

// Procedures

func (s *Store) CreateProcedure(_ context.Context, p model.Procedure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.animals[p.AnimalID]; !ok {
		return fmt.Errorf("animal %s: %w", p.AnimalID, store.ErrNotFound)
	}
	s.procedures[p.ID] = p
	return nil
}

func (s *Store) GetProcedure(_ context.Context, id string) (model.Procedure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.procedures[id]
	if !ok {
		return model.Procedure{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListProcedures(_ context.Context, animalID string) ([]model.Procedure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Procedure, 0)
	for _, p := range s.procedures {
		if p.AnimalID == animalID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PerformedOn.Equal(out[j].PerformedOn) {
			return out[i].ID < out[j].ID
		}
		return out[i].PerformedOn.After(out[j].PerformedOn)
	})
	return out, nil
}

func (s *Store) DeleteProcedure(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.procedures[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.procedures, id)
	return nil
}

// Adoption requests

func cloneRequest(r model.AdoptionRequest) model.AdoptionRequest {
	r.PhotoURLs = append([]string(nil), r.PhotoURLs...)
	if r.ResponseMessage != nil {
		msg := *r.ResponseMessage
		r.ResponseMessage = &msg
	}
	if r.RespondedAt != nil {
		at := *r.RespondedAt
		r.RespondedAt = &at
	}
	return r
}

func (s *Store) CreateAdoptionRequest(_ context.Context, r model.AdoptionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID]; ok {
		return store.ErrConflict
	}
	s.requests[r.ID] = cloneRequest(r)
	return nil
}

func (s *Store) GetAdoptionRequest(_ context.Context, id string) (model.AdoptionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return model.AdoptionRequest{}, store.ErrNotFound
	}
	return cloneRequest(r), nil
}

func (s *Store) listRequests(match func(model.AdoptionRequest) bool) []model.AdoptionRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AdoptionRequest, 0)
	for _, r := range s.requests {
		if match(r) {
			out = append(out, cloneRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

func (s *Store) ListAdoptionRequestsByAdopter(_ context.Context, adopterID string) ([]model.AdoptionRequest, error) {
	return s.listRequests(func(r model.AdoptionRequest) bool { return r.AdopterID == adopterID }), nil
}

func (s *Store) ListAdoptionRequestsByOrganization(_ context.Context, organizationID string) ([]model.AdoptionRequest, error) {
	return s.listRequests(func(r model.AdoptionRequest) bool { return r.OrganizationID == organizationID }), nil
}

func (s *Store) DecideAdoptionRequest(_ context.Context, d store.Decision) (model.AdoptionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[d.RequestID]
	if !ok {
		return model.AdoptionRequest{}, store.ErrNotFound
	}
	if r.Status != model.RequestPending {
		return model.AdoptionRequest{}, fmt.Errorf("request %s is no longer pending: %w", r.ID, store.ErrConflict)
	}

	var animal model.Animal
	if d.AdoptAnimal {
		animal, ok = s.animals[r.AnimalID]
		if !ok {
			return model.AdoptionRequest{}, fmt.Errorf("animal %s: %w", r.AnimalID, store.ErrNotFound)
		}
	}

	msg := d.Message
	at := d.RespondedAt
	r.Status = d.Status
	r.ResponseMessage = &msg
	r.RespondedAt = &at
	s.requests[r.ID] = r

	if d.AdoptAnimal {
		animal.Status = model.AnimalAdopted
		animal.UpdatedAt = at
		s.animals[animal.ID] = animal
	}
	return cloneRequest(r), nil
}

func (s *Store) CancelAdoptionRequest(_ context.Context, id string, at time.Time) (model.AdoptionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return model.AdoptionRequest{}, store.ErrNotFound
	}
	if r.Status != model.RequestPending {
		return model.AdoptionRequest{}, fmt.Errorf("request %s is no longer pending: %w", id, store.ErrConflict)
	}
	r.Status = model.RequestCancelled
	r.RespondedAt = &at
	s.requests[id] = r
	return cloneRequest(r), nil
}

func (s *Store) ListAdoptionPhotoURLs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, r := range s.requests {
		for _, u := range r.PhotoURLs {
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
