package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"petadopt/internal/model"
	"petadopt/internal/storage"
	"petadopt/internal/store"

	"go.uber.org/zap"
)

type AnimalInput struct {
	Name        string             `json:"name"`
	Species     string             `json:"species"`
	Age         model.Age          `json:"age"`
	Sex         model.Sex          `json:"sex"`
	Sterilized  bool               `json:"sterilized"`
	Status      model.AnimalStatus `json:"status"`
	Description string             `json:"description"`
}

func (in *AnimalInput) validate() error {
	v := &ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		v.Problems = append(v.Problems, Problem{Field: "name", Reason: "required"})
	}
	if strings.TrimSpace(in.Species) == "" {
		v.Problems = append(v.Problems, Problem{Field: "species", Reason: "required"})
	}
	if !in.Sex.Valid() {
		v.Problems = append(v.Problems, Problem{Field: "sex", Reason: fmt.Sprintf("must be %s or %s", model.SexMale, model.SexFemale)})
	}
	if in.Age.Value < 0 {
		v.Problems = append(v.Problems, Problem{Field: "age.value", Reason: "must not be negative"})
	}
	if in.Age.Unit != model.AgeYears && in.Age.Unit != model.AgeMonths {
		v.Problems = append(v.Problems, Problem{Field: "age.unit", Reason: fmt.Sprintf("must be %s or %s", model.AgeYears, model.AgeMonths)})
	}
	if in.Status == "" {
		in.Status = model.AnimalForAdoption
	} else if !in.Status.Valid() {
		v.Problems = append(v.Problems, Problem{Field: "status", Reason: fmt.Sprintf("unknown status %q", in.Status)})
	}
	if len(v.Problems) > 0 {
		return v
	}
	return nil
}

type AnimalService struct {
	store       store.Store
	blobs       storage.Storage
	bus         EventBus
	photoPolicy *storage.FilePolicy
	log         *zap.Logger
	now         func() time.Time
}

func NewAnimalService(st store.Store, blobs storage.Storage, bus EventBus, maxPhotoMB float64, log *zap.Logger) *AnimalService {
	if bus == nil {
		bus = nopBus{}
	}
	if maxPhotoMB <= 0 {
		maxPhotoMB = 5
	}
	return &AnimalService{
		store:       st,
		blobs:       blobs,
		bus:         bus,
		photoPolicy: storage.ImagePolicy(maxPhotoMB),
		log:         log,
		now:         time.Now,
	}
}

func (s *AnimalService) checkPhoto(photo *storage.Upload) error {
	if photo == nil {
		return nil
	}
	if err := s.photoPolicy.ValidateFile(photo.Name, photo.ContentType, photo.Size); err != nil {
		return invalid("photo", fmt.Sprintf("%s: %v", photo.Name, err))
	}
	return nil
}

func (s *AnimalService) putPhoto(ctx context.Context, animalID string, photo *storage.Upload) (key, url string, err error) {
	key = fmt.Sprintf("animals/%s_%d_%s", animalID, s.now().UnixMilli(), storage.SafeName(photo.Name))
	url, err = s.blobs.Put(ctx, key, photo.ContentType, photo.Body)
	if err != nil {
		return "", "", &PersistenceError{Op: "upload animal photo", Err: err}
	}
	return key, url, nil
}

// dropPhoto deletes an image by URL, logging failures.
func (s *AnimalService) dropPhoto(ctx context.Context, url string) {
	if url == "" {
		return
	}
	key, ok := s.blobs.ObjectName(url)
	if !ok {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.log.Warn("Failed to delete animal photo", zap.String("key", key), zap.Error(err))
	}
}

// Create registers an animal under the session's active organization.
func (s *AnimalService) Create(ctx context.Context, sess model.Session, in AnimalInput, photo *storage.Upload) (*model.Animal, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.checkPhoto(photo); err != nil {
		return nil, err
	}
	org, err := requireMember(ctx, s.store, sess, sess.ActiveOrganizationID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	orgID := org.ID
	animal := model.Animal{
		ID:             newID(),
		Name:           strings.TrimSpace(in.Name),
		Species:        strings.TrimSpace(in.Species),
		Age:            in.Age,
		Sex:            in.Sex,
		Sterilized:     in.Sterilized,
		Status:         in.Status,
		Description:    in.Description,
		OrganizationID: &orgID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if photo != nil {
		key, url, err := s.putPhoto(ctx, animal.ID, photo)
		if err != nil {
			return nil, err
		}
		animal.PhotoURL = url
		if err := s.store.CreateAnimal(ctx, animal); err != nil {
			if derr := s.blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
				s.log.Warn("Failed to delete animal photo", zap.String("key", key), zap.Error(derr))
			}
			return nil, &PersistenceError{Op: "create animal", Err: err}
		}
	} else if err := s.store.CreateAnimal(ctx, animal); err != nil {
		return nil, &PersistenceError{Op: "create animal", Err: err}
	}

	_ = s.bus.PublishOrganization(orgID, map[string]interface{}{
		"type":     "animal.created",
		"animalId": animal.ID,
	})
	s.log.Info("Animal registered", zap.String("animal_id", animal.ID), zap.String("organization_id", orgID))
	return &animal, nil
}

// editable loads an animal and checks the session may modify it.
func (s *AnimalService) editable(ctx context.Context, sess model.Session, id string) (model.Animal, error) {
	animal, err := s.store.GetAnimal(ctx, id)
	if err != nil {
		return model.Animal{}, storeErr("load animal", "animal", id, err)
	}
	if animal.OrganizationID == nil {
		return model.Animal{}, forbidden("animal %s has no organization", id)
	}
	if _, err := requireActiveMember(ctx, s.store, sess, *animal.OrganizationID); err != nil {
		return model.Animal{}, err
	}
	return animal, nil
}

// Update replaces the animal's fields and, when a photo is given, its image.
func (s *AnimalService) Update(ctx context.Context, sess model.Session, id string, in AnimalInput, photo *storage.Upload) (*model.Animal, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.checkPhoto(photo); err != nil {
		return nil, err
	}
	animal, err := s.editable(ctx, sess, id)
	if err != nil {
		return nil, err
	}

	oldPhoto := animal.PhotoURL
	animal.Name = strings.TrimSpace(in.Name)
	animal.Species = strings.TrimSpace(in.Species)
	animal.Age = in.Age
	animal.Sex = in.Sex
	animal.Sterilized = in.Sterilized
	animal.Status = in.Status
	animal.Description = in.Description
	animal.UpdatedAt = s.now().UTC()

	if photo != nil {
		_, url, err := s.putPhoto(ctx, animal.ID, photo)
		if err != nil {
			return nil, err
		}
		animal.PhotoURL = url
	}
	if err := s.store.UpdateAnimal(ctx, animal); err != nil {
		if photo != nil {
			s.dropPhoto(context.WithoutCancel(ctx), animal.PhotoURL)
		}
		return nil, storeErr("update animal", "animal", id, err)
	}
	if photo != nil && oldPhoto != animal.PhotoURL {
		s.dropPhoto(ctx, oldPhoto)
	}

	_ = s.bus.PublishOrganization(*animal.OrganizationID, map[string]interface{}{
		"type":     "animal.updated",
		"animalId": animal.ID,
	})
	return &animal, nil
}

func (s *AnimalService) SetStatus(ctx context.Context, sess model.Session, id string, status model.AnimalStatus) (*model.Animal, error) {
	if !status.Valid() {
		return nil, invalid("status", fmt.Sprintf("unknown status %q", status))
	}
	animal, err := s.editable(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.store.SetAnimalStatus(ctx, id, status, now); err != nil {
		return nil, storeErr("update animal status", "animal", id, err)
	}
	animal.Status = status
	animal.UpdatedAt = now

	_ = s.bus.PublishOrganization(*animal.OrganizationID, map[string]interface{}{
		"type":     "animal.status_changed",
		"animalId": animal.ID,
		"status":   string(status),
	})
	return &animal, nil
}

// Delete removes the animal and its procedures. Image removal is
// best-effort.
func (s *AnimalService) Delete(ctx context.Context, sess model.Session, id string) error {
	animal, err := s.editable(ctx, sess, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAnimal(ctx, id); err != nil {
		return storeErr("delete animal", "animal", id, err)
	}
	s.dropPhoto(ctx, animal.PhotoURL)

	_ = s.bus.PublishOrganization(*animal.OrganizationID, map[string]interface{}{
		"type":     "animal.deleted",
		"animalId": id,
	})
	s.log.Info("Animal deleted", zap.String("animal_id", id), zap.String("user_id", sess.UserID))
	return nil
}

func (s *AnimalService) Get(ctx context.Context, id string) (*model.Animal, error) {
	animal, err := s.store.GetAnimal(ctx, id)
	if err != nil {
		return nil, storeErr("load animal", "animal", id, err)
	}
	return &animal, nil
}

// Search lists animals matching every non-empty filter field, ordered by name.
func (s *AnimalService) Search(ctx context.Context, f store.AnimalFilter) ([]model.Animal, error) {
	if f.Sex != "" && !f.Sex.Valid() {
		return nil, invalid("sex", fmt.Sprintf("unknown sex %q", f.Sex))
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("status", fmt.Sprintf("unknown status %q", f.Status))
	}
	f.Name = strings.TrimSpace(f.Name)
	animals, err := s.store.SearchAnimals(ctx, f)
	if err != nil {
		return nil, &PersistenceError{Op: "search animals", Err: err}
	}
	return animals, nil
}
