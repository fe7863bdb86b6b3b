package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"petadopt/internal/model"
	"petadopt/internal/store"

	"go.uber.org/zap"
)

type OrganizationInput struct {
	Name         string                    `json:"name"`
	Contact      string                    `json:"contact"`
	Address      model.OrganizationAddress `json:"address"`
	Participants string                    `json:"participants"`
}

func (in OrganizationInput) validate() error {
	v := &ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		v.Problems = append(v.Problems, Problem{Field: "name", Reason: "required"})
	}
	if strings.TrimSpace(in.Contact) == "" {
		v.Problems = append(v.Problems, Problem{Field: "contact", Reason: "required"})
	}
	if s := in.Address.State; s != "" && len(s) != 2 {
		v.Problems = append(v.Problems, Problem{Field: "address.state", Reason: "must be a two-letter state code"})
	}
	if len(v.Problems) > 0 {
		return v
	}
	return nil
}

type OrganizationService struct {
	store store.Store
	bus   EventBus
	log   *zap.Logger
	now   func() time.Time
}

func NewOrganizationService(st store.Store, bus EventBus, log *zap.Logger) *OrganizationService {
	if bus == nil {
		bus = nopBus{}
	}
	return &OrganizationService{store: st, bus: bus, log: log, now: time.Now}
}

// Create registers an organization with the creator as its first member.
func (s *OrganizationService) Create(ctx context.Context, sess model.Session, in OrganizationInput) (*model.Organization, error) {
	if err := requireRole(sess, model.RoleProtetor); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	org := model.Organization{
		ID:           newID(),
		Name:         strings.TrimSpace(in.Name),
		Contact:      strings.TrimSpace(in.Contact),
		Address:      in.Address,
		MemberIDs:    []string{sess.UserID},
		Participants: in.Participants,
		CreatedBy:    sess.UserID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateOrganization(ctx, org); err != nil {
		return nil, &PersistenceError{Op: "create organization", Err: err}
	}

	s.log.Info("Organization created", zap.String("organization_id", org.ID), zap.String("user_id", sess.UserID))
	return &org, nil
}

func (s *OrganizationService) Get(ctx context.Context, id string) (*model.Organization, error) {
	org, err := s.store.GetOrganization(ctx, id)
	if err != nil {
		return nil, storeErr("load organization", "organization", id, err)
	}
	return &org, nil
}

// ListForMember returns the organizations the session user belongs to,
// newest first.
func (s *OrganizationService) ListForMember(ctx context.Context, sess model.Session) ([]model.Organization, error) {
	if err := requireRole(sess, model.RoleProtetor); err != nil {
		return nil, err
	}
	orgs, err := s.store.ListOrganizationsForMember(ctx, sess.UserID)
	if err != nil {
		return nil, &PersistenceError{Op: "list organizations", Err: err}
	}
	return orgs, nil
}

func (s *OrganizationService) Update(ctx context.Context, sess model.Session, id string, in OrganizationInput) (*model.Organization, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	org, err := requireMember(ctx, s.store, sess, id)
	if err != nil {
		return nil, err
	}

	org.Name = strings.TrimSpace(in.Name)
	org.Contact = strings.TrimSpace(in.Contact)
	org.Address = in.Address
	org.Participants = in.Participants
	org.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateOrganization(ctx, org); err != nil {
		return nil, storeErr("update organization", "organization", id, err)
	}
	return &org, nil
}

// AddMember adds an existing protetor to the organization.
func (s *OrganizationService) AddMember(ctx context.Context, sess model.Session, id, userID string) (*model.Organization, error) {
	if _, err := requireMember(ctx, s.store, sess, id); err != nil {
		return nil, err
	}
	target, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, storeErr("load user", "user", userID, err)
	}
	if target.Role != model.RoleProtetor {
		return nil, invalid("userId", "only protetor users can join an organization")
	}

	// Adding an existing member is a no-op.
	if err := s.store.AddOrganizationMember(ctx, id, userID, s.now().UTC()); err != nil {
		return nil, storeErr("add member", "organization", id, err)
	}

	_ = s.bus.PublishOrganization(id, map[string]interface{}{
		"type":   "organization.member_added",
		"userId": userID,
	})
	return s.Get(ctx, id)
}

// RemoveMember removes a member. The last member cannot be removed.
func (s *OrganizationService) RemoveMember(ctx context.Context, sess model.Session, id, userID string) (*model.Organization, error) {
	org, err := requireMember(ctx, s.store, sess, id)
	if err != nil {
		return nil, err
	}
	if !org.HasMember(userID) {
		return nil, &NotFoundError{Kind: "member", ID: userID}
	}

	err = s.store.RemoveOrganizationMember(ctx, id, userID, s.now().UTC())
	switch {
	case errors.Is(err, store.ErrConflict):
		return nil, invalid("userId", "an organization must keep at least one member")
	case err != nil:
		return nil, storeErr("remove member", "organization", id, err)
	}

	_ = s.bus.PublishOrganization(id, map[string]interface{}{
		"type":   "organization.member_removed",
		"userId": userID,
	})
	return s.Get(ctx, id)
}

// RequireMembership resolves the session's active organization and checks
// the user belongs to it.
func (s *OrganizationService) RequireMembership(ctx context.Context, sess model.Session) (*model.Organization, error) {
	org, err := requireMember(ctx, s.store, sess, sess.ActiveOrganizationID)
	if err != nil {
		return nil, err
	}
	return &org, nil
}
