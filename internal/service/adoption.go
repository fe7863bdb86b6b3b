package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"petadopt/internal/model"
	"petadopt/internal/schema"
	"petadopt/internal/storage"
	"petadopt/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultApprovalMessage is used when staff approve without a message.
	DefaultApprovalMessage = "Solicitação aprovada! Entre em contato conosco para finalizar o processo."
	RequiredPhotos         = 3
	photoPrefix            = "adoption-requests/"
)

var tracer = otel.Tracer("petadopt/internal/service")

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type AdoptionConfig struct {
	MaxPhotoMB float64
	// WithdrawnPhotoRetention delays photo deletion after a withdrawal.
	WithdrawnPhotoRetention time.Duration
}

type AdoptionService struct {
	store       store.Store
	blobs       storage.Storage
	forms       *schema.Compiler
	bus         EventBus
	jobClient   JobClient
	photoPolicy *storage.FilePolicy
	retention   time.Duration
	log         *zap.Logger
	now         func() time.Time
}

func NewAdoptionService(st store.Store, blobs storage.Storage, forms *schema.Compiler, bus EventBus, cfg AdoptionConfig, log *zap.Logger) *AdoptionService {
	if bus == nil {
		bus = nopBus{}
	}
	if cfg.MaxPhotoMB <= 0 {
		cfg.MaxPhotoMB = 5
	}
	return &AdoptionService{
		store:       st,
		blobs:       blobs,
		forms:       forms,
		bus:         bus,
		photoPolicy: storage.ImagePolicy(cfg.MaxPhotoMB),
		retention:   cfg.WithdrawnPhotoRetention,
		log:         log,
		now:         time.Now,
	}
}

// SetJobClient sets the job client for scheduling background jobs
func (s *AdoptionService) SetJobClient(client JobClient) {
	s.jobClient = client
}

type CreateAdoptionInput struct {
	AnimalID       string               `json:"animalId"`
	OrganizationID string               `json:"organizationId"`
	PersonalInfo   model.PersonalInfo   `json:"personalInfo"`
	Address        model.RequestAddress `json:"address"`
	HomeInfo       model.HomeInfo       `json:"homeInfo"`
	Declaration    bool                 `json:"declaration"`
}

func (s *AdoptionService) validateCreate(ctx context.Context, in CreateAdoptionInput, photos []storage.Upload) error {
	v := &ValidationError{}
	if strings.TrimSpace(in.AnimalID) == "" {
		v.Problems = append(v.Problems, Problem{Field: "animalId", Reason: "required"})
	}
	if strings.TrimSpace(in.OrganizationID) == "" {
		v.Problems = append(v.Problems, Problem{Field: "organizationId", Reason: "required"})
	}
	if !in.Declaration {
		v.Problems = append(v.Problems, Problem{Field: "declaration", Reason: "the truthfulness declaration must be accepted"})
	}
	if len(photos) != RequiredPhotos {
		v.Problems = append(v.Problems, Problem{
			Field:  "photos",
			Reason: fmt.Sprintf("exactly %d photos are required, got %d", RequiredPhotos, len(photos)),
		})
	} else {
		for i, p := range photos {
			if err := s.photoPolicy.ValidateFile(p.Name, p.ContentType, p.Size); err != nil {
				v.Problems = append(v.Problems, Problem{
					Field:  fmt.Sprintf("photos[%d]", i),
					Reason: fmt.Sprintf("%s: %v", p.Name, err),
				})
			}
		}
	}

	if s.forms != nil {
		err := s.forms.Validate(ctx, schema.AdoptionRequestForm, in)
		var schemaErrs schema.ValidationErrors
		switch {
		case errors.As(err, &schemaErrs):
			v.Problems = append(v.Problems, fromSchema(schemaErrs).Problems...)
		case err != nil:
			return fmt.Errorf("validate adoption form: %w", err)
		}
	}

	if len(v.Problems) > 0 {
		return v
	}
	return nil
}

// CreateRequest validates the submission, uploads the three environment
// photos and persists a pending request.
func (s *AdoptionService) CreateRequest(ctx context.Context, sess model.Session, in CreateAdoptionInput, photos []storage.Upload) (_ *model.AdoptionRequest, err error) {
	ctx, span := tracer.Start(ctx, "AdoptionService.CreateRequest",
		trace.WithAttributes(attribute.String("animal.id", in.AnimalID)))
	defer func() { endSpan(span, err) }()

	if err := requireRole(sess, model.RoleAdotante); err != nil {
		return nil, err
	}
	if err := s.validateCreate(ctx, in, photos); err != nil {
		return nil, err
	}

	animal, err := s.store.GetAnimal(ctx, in.AnimalID)
	if err != nil {
		return nil, storeErr("load animal", "animal", in.AnimalID, err)
	}
	if !animal.OwnedBy(in.OrganizationID) {
		return nil, invalid("organizationId", "animal does not belong to this organization")
	}
	if animal.Status != model.AnimalForAdoption {
		return nil, invalid("animalId", fmt.Sprintf("animal is not available for adoption (status %s)", animal.Status))
	}
	org, err := s.store.GetOrganization(ctx, in.OrganizationID)
	if err != nil {
		return nil, storeErr("load organization", "organization", in.OrganizationID, err)
	}

	now := s.now().UTC()
	keys, urls, err := s.uploadPhotos(ctx, now, photos)
	if err != nil {
		s.discard(keys)
		return nil, &PersistenceError{Op: "upload photos", Err: err}
	}

	req := model.AdoptionRequest{
		ID:               newID(),
		AdopterID:        sess.UserID,
		OrganizationID:   org.ID,
		AnimalID:         animal.ID,
		OrganizationName: org.Name,
		AnimalName:       animal.Name,
		PersonalInfo:     in.PersonalInfo,
		Address:          in.Address,
		HomeInfo:         in.HomeInfo,
		PhotoURLs:        urls,
		Declaration:      true,
		Status:           model.RequestPending,
		SubmittedAt:      now,
	}
	if err := s.store.CreateAdoptionRequest(ctx, req); err != nil {
		s.discard(keys)
		return nil, &PersistenceError{Op: "create adoption request", Err: err}
	}

	event := map[string]interface{}{
		"type":      "adoption.submitted",
		"requestId": req.ID,
		"animalId":  req.AnimalID,
	}
	_ = s.bus.PublishOrganization(req.OrganizationID, event)
	_ = s.bus.PublishAdopter(req.AdopterID, event)

	s.log.Info("Adoption request submitted",
		zap.String("request_id", req.ID),
		zap.String("animal_id", req.AnimalID),
		zap.String("organization_id", req.OrganizationID),
	)
	return &req, nil
}

// uploadPhotos stores the photos concurrently under a temporary prefix,
// since the request id is not yet persisted. The returned keys include
// every object written, even on error, so the caller can discard them.
func (s *AdoptionService) uploadPhotos(ctx context.Context, now time.Time, photos []storage.Upload) ([]string, []string, error) {
	prefix := fmt.Sprintf("%stemp_%d/", photoPrefix, now.UnixMilli())
	urls := make([]string, len(photos))

	var mu sync.Mutex
	var written []string

	g, gctx := errgroup.WithContext(ctx)
	for i, photo := range photos {
		i, photo := i, photo
		key := fmt.Sprintf("%s%d_%s_%s", prefix, i+1, newID(), storage.SafeName(photo.Name))
		g.Go(func() error {
			url, err := s.blobs.Put(gctx, key, photo.ContentType, photo.Body)
			if err != nil {
				return fmt.Errorf("photo %d: %w", i+1, err)
			}
			mu.Lock()
			written = append(written, key)
			mu.Unlock()
			urls[i] = url
			return nil
		})
	}
	err := g.Wait()
	return written, urls, err
}

// discard removes uploaded objects that no record will reference.
func (s *AdoptionService) discard(keys []string) {
	if len(keys) == 0 {
		return
	}
	if s.jobClient != nil {
		err := s.jobClient.ScheduleBlobCleanup(keys, 0)
		if err == nil {
			return
		}
		s.log.Warn("Failed to schedule photo cleanup, deleting inline", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.log.Warn("Failed to delete orphaned photo", zap.String("key", key), zap.Error(err))
		}
	}
}

// Get returns a request visible to the session: adopters see their own,
// protetores see requests of organizations they belong to.
func (s *AdoptionService) Get(ctx context.Context, sess model.Session, id string) (*model.AdoptionRequest, error) {
	req, err := s.store.GetAdoptionRequest(ctx, id)
	if err != nil {
		return nil, storeErr("load adoption request", "adoption request", id, err)
	}

	switch sess.Role {
	case model.RoleAdotante:
		if req.AdopterID != sess.UserID {
			return nil, forbidden("request belongs to another adopter")
		}
	case model.RoleProtetor:
		if _, err := requireMember(ctx, s.store, sess, req.OrganizationID); err != nil {
			return nil, err
		}
	default:
		return nil, forbidden("unknown role %q", sess.Role)
	}
	return &req, nil
}

// ListForAdopter returns the session adopter's requests, newest first.
func (s *AdoptionService) ListForAdopter(ctx context.Context, sess model.Session) ([]model.AdoptionRequest, error) {
	if err := requireRole(sess, model.RoleAdotante); err != nil {
		return nil, err
	}
	reqs, err := s.store.ListAdoptionRequestsByAdopter(ctx, sess.UserID)
	if err != nil {
		return nil, &PersistenceError{Op: "list adoption requests", Err: err}
	}
	return reqs, nil
}

// ListForOrganization returns requests of the session's active organization,
// newest first.
func (s *AdoptionService) ListForOrganization(ctx context.Context, sess model.Session) ([]model.AdoptionRequest, error) {
	org, err := requireMember(ctx, s.store, sess, sess.ActiveOrganizationID)
	if err != nil {
		return nil, err
	}
	reqs, err := s.store.ListAdoptionRequestsByOrganization(ctx, org.ID)
	if err != nil {
		return nil, &PersistenceError{Op: "list adoption requests", Err: err}
	}
	return reqs, nil
}

// UpdateStatus approves or rejects a pending request on behalf of the
// session's active organization. Approval marks the animal adopted in the
// same store transaction.
func (s *AdoptionService) UpdateStatus(ctx context.Context, sess model.Session, id string, status model.RequestStatus, message string) (_ *model.AdoptionRequest, err error) {
	ctx, span := tracer.Start(ctx, "AdoptionService.UpdateStatus",
		trace.WithAttributes(
			attribute.String("request.id", id),
			attribute.String("request.status", string(status)),
		))
	defer func() { endSpan(span, err) }()

	message = strings.TrimSpace(message)
	switch status {
	case model.RequestApproved:
		if message == "" {
			message = DefaultApprovalMessage
		}
	case model.RequestRejected:
		if message == "" {
			return nil, invalid("responseMessage", "a message is required when rejecting")
		}
	case model.RequestPending, model.RequestCancelled:
		return nil, invalid("status", fmt.Sprintf("status must be %s or %s", model.RequestApproved, model.RequestRejected))
	default:
		return nil, invalid("status", fmt.Sprintf("unknown status %q", status))
	}

	current, err := s.store.GetAdoptionRequest(ctx, id)
	if err != nil {
		return nil, storeErr("load adoption request", "adoption request", id, err)
	}
	if _, err := requireActiveMember(ctx, s.store, sess, current.OrganizationID); err != nil {
		return nil, err
	}
	if current.Status != model.RequestPending {
		return nil, &InvalidStateError{Current: current.Status}
	}

	decided, err := s.store.DecideAdoptionRequest(ctx, store.Decision{
		RequestID:   id,
		Status:      status,
		Message:     message,
		RespondedAt: s.now().UTC(),
		AdoptAnimal: status == model.RequestApproved,
	})
	switch {
	case errors.Is(err, store.ErrConflict):
		return nil, s.lostRace(ctx, id)
	case errors.Is(err, store.ErrNotFound):
		return nil, &NotFoundError{Kind: "animal", ID: current.AnimalID}
	case err != nil:
		return nil, &PersistenceError{Op: "update adoption request", Err: err}
	}

	event := map[string]interface{}{
		"type":      "adoption." + string(decided.Status),
		"requestId": decided.ID,
		"animalId":  decided.AnimalID,
	}
	_ = s.bus.PublishOrganization(decided.OrganizationID, event)
	_ = s.bus.PublishAdopter(decided.AdopterID, event)
	_ = s.bus.PublishAdoptionRequest(decided.ID, event)
	if decided.Status == model.RequestApproved {
		_ = s.bus.PublishOrganization(decided.OrganizationID, map[string]interface{}{
			"type":     "animal.adopted",
			"animalId": decided.AnimalID,
		})
	}

	if s.jobClient != nil {
		if err := s.jobClient.ScheduleDecisionNotification(decided.ID); err != nil {
			s.log.Warn("Failed to schedule decision notification", zap.String("request_id", decided.ID), zap.Error(err))
		}
	}

	s.log.Info("Adoption request decided",
		zap.String("request_id", decided.ID),
		zap.String("status", string(decided.Status)),
		zap.String("user_id", sess.UserID),
	)
	return &decided, nil
}

// lostRace reports the status a concurrent writer left the request in.
func (s *AdoptionService) lostRace(ctx context.Context, id string) error {
	current, err := s.store.GetAdoptionRequest(ctx, id)
	if err != nil {
		return storeErr("load adoption request", "adoption request", id, err)
	}
	return &InvalidStateError{Current: current.Status}
}

// Withdraw cancels a pending request on behalf of its adopter. The record is
// kept with status cancelled; its photos are deleted after the retention
// period.
func (s *AdoptionService) Withdraw(ctx context.Context, sess model.Session, id string) (err error) {
	ctx, span := tracer.Start(ctx, "AdoptionService.Withdraw",
		trace.WithAttributes(attribute.String("request.id", id)))
	defer func() { endSpan(span, err) }()

	current, err := s.store.GetAdoptionRequest(ctx, id)
	if err != nil {
		return storeErr("load adoption request", "adoption request", id, err)
	}
	if sess.Role != model.RoleAdotante || current.AdopterID != sess.UserID {
		return forbidden("only the adopter who submitted the request may withdraw it")
	}
	if current.Status != model.RequestPending {
		return &InvalidStateError{Current: current.Status}
	}

	cancelled, err := s.store.CancelAdoptionRequest(ctx, id, s.now().UTC())
	switch {
	case errors.Is(err, store.ErrConflict):
		return s.lostRace(ctx, id)
	case err != nil:
		return storeErr("cancel adoption request", "adoption request", id, err)
	}

	event := map[string]interface{}{
		"type":      "adoption.cancelled",
		"requestId": cancelled.ID,
		"animalId":  cancelled.AnimalID,
	}
	_ = s.bus.PublishOrganization(cancelled.OrganizationID, event)
	_ = s.bus.PublishAdoptionRequest(cancelled.ID, event)

	if s.jobClient != nil {
		keys := make([]string, 0, len(cancelled.PhotoURLs))
		for _, u := range cancelled.PhotoURLs {
			if key, ok := s.blobs.ObjectName(u); ok {
				keys = append(keys, key)
			}
		}
		if err := s.jobClient.ScheduleBlobCleanup(keys, s.retention); err != nil {
			s.log.Warn("Failed to schedule photo cleanup", zap.String("request_id", id), zap.Error(err))
		}
	}
	return nil
}
