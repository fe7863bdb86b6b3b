package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"petadopt/internal/model"
	"petadopt/internal/store"

	"go.uber.org/zap"
)

type ProcedureInput struct {
	Description string                  `json:"description"`
	Category    model.ProcedureCategory `json:"category"`
	// PerformedOn is a YYYY-MM-DD date.
	PerformedOn string `json:"performedOn"`
}

type ProcedureService struct {
	store store.Store
	log   *zap.Logger
	now   func() time.Time
}

func NewProcedureService(st store.Store, log *zap.Logger) *ProcedureService {
	return &ProcedureService{store: st, log: log, now: time.Now}
}

func (in ProcedureInput) parse() (time.Time, error) {
	v := &ValidationError{}
	if strings.TrimSpace(in.Description) == "" {
		v.Problems = append(v.Problems, Problem{Field: "description", Reason: "required"})
	}
	if !in.Category.Valid() {
		v.Problems = append(v.Problems, Problem{Field: "category", Reason: fmt.Sprintf("unknown category %q", in.Category)})
	}
	performed, err := time.Parse(time.DateOnly, in.PerformedOn)
	if err != nil {
		v.Problems = append(v.Problems, Problem{Field: "performedOn", Reason: "must be a YYYY-MM-DD date"})
	}
	if len(v.Problems) > 0 {
		return time.Time{}, v
	}
	return performed, nil
}

// memberOfAnimalOrg checks the session user belongs to the animal's organization.
func (s *ProcedureService) memberOfAnimalOrg(ctx context.Context, sess model.Session, animalID string) error {
	animal, err := s.store.GetAnimal(ctx, animalID)
	if err != nil {
		return storeErr("load animal", "animal", animalID, err)
	}
	if animal.OrganizationID == nil {
		return forbidden("animal %s has no organization", animalID)
	}
	_, err = requireMember(ctx, s.store, sess, *animal.OrganizationID)
	return err
}

func (s *ProcedureService) Create(ctx context.Context, sess model.Session, animalID string, in ProcedureInput) (*model.Procedure, error) {
	performed, err := in.parse()
	if err != nil {
		return nil, err
	}
	if err := s.memberOfAnimalOrg(ctx, sess, animalID); err != nil {
		return nil, err
	}

	p := model.Procedure{
		ID:          newID(),
		AnimalID:    animalID,
		Description: strings.TrimSpace(in.Description),
		Category:    in.Category,
		PerformedOn: performed,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateProcedure(ctx, p); err != nil {
		return nil, storeErr("create procedure", "animal", animalID, err)
	}
	return &p, nil
}

// ListForAnimal returns the animal's procedures, most recent first.
func (s *ProcedureService) ListForAnimal(ctx context.Context, animalID string) ([]model.Procedure, error) {
	if _, err := s.store.GetAnimal(ctx, animalID); err != nil {
		return nil, storeErr("load animal", "animal", animalID, err)
	}
	procs, err := s.store.ListProcedures(ctx, animalID)
	if err != nil {
		return nil, &PersistenceError{Op: "list procedures", Err: err}
	}
	return procs, nil
}

func (s *ProcedureService) Delete(ctx context.Context, sess model.Session, id string) error {
	p, err := s.store.GetProcedure(ctx, id)
	if err != nil {
		return storeErr("load procedure", "procedure", id, err)
	}
	if err := s.memberOfAnimalOrg(ctx, sess, p.AnimalID); err != nil {
		return err
	}
	if err := s.store.DeleteProcedure(ctx, id); err != nil {
		return storeErr("delete procedure", "procedure", id, err)
	}
	s.log.Info("Procedure deleted", zap.String("procedure_id", id), zap.String("animal_id", p.AnimalID))
	return nil
}
