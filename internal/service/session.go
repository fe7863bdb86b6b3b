package service

import (
	"context"
	"strings"

	"petadopt/internal/model"
	"petadopt/internal/store"

	"github.com/oklog/ulid/v2"
)

func newID() string {
	return ulid.Make().String()
}

func requireRole(sess model.Session, role model.Role) error {
	if sess.UserID == "" {
		return forbidden("authentication required")
	}
	switch sess.Role {
	case model.RoleProtetor, model.RoleAdotante:
		if sess.Role != role {
			return forbidden("requires role %s", role)
		}
		return nil
	default:
		return forbidden("unknown role %q", sess.Role)
	}
}

// requireMember loads organizationID and checks the session user is a
// protetor member of it.
func requireMember(ctx context.Context, orgs store.Organizations, sess model.Session, organizationID string) (model.Organization, error) {
	if err := requireRole(sess, model.RoleProtetor); err != nil {
		return model.Organization{}, err
	}
	if strings.TrimSpace(organizationID) == "" {
		return model.Organization{}, invalid("organizationId", "no active organization selected")
	}
	org, err := orgs.GetOrganization(ctx, organizationID)
	if err != nil {
		return model.Organization{}, storeErr("load organization", "organization", organizationID, err)
	}
	if !org.HasMember(sess.UserID) {
		return model.Organization{}, forbidden("user %s is not a member of organization %s", sess.UserID, organizationID)
	}
	return org, nil
}

// requireActiveMember is requireMember for the session's active organization,
// additionally requiring the target organization to be the active one.
func requireActiveMember(ctx context.Context, orgs store.Organizations, sess model.Session, organizationID string) (model.Organization, error) {
	if err := requireRole(sess, model.RoleProtetor); err != nil {
		return model.Organization{}, err
	}
	if organizationID != sess.ActiveOrganizationID {
		return model.Organization{}, forbidden("record belongs to organization %s, active organization is %q", organizationID, sess.ActiveOrganizationID)
	}
	return requireMember(ctx, orgs, sess, organizationID)
}
