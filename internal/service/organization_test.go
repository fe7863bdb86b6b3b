package service

import (
	"context"
	"testing"

	"petadopt/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOrganization_CreateAndList(t *testing.T) {
	w := newWorld(t)
	svc := NewOrganizationService(w.st, w.bus, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Create(ctx, w.adopter, OrganizationInput{Name: "Abrigo", Contact: "x"})
	var aerr *AuthorizationError
	assert.ErrorAs(t, err, &aerr)

	_, err = svc.Create(ctx, w.staffO, OrganizationInput{Address: model.OrganizationAddress{State: "São Paulo"}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"name", "contact", "address.state"}, fields(verr))

	org, err := svc.Create(ctx, w.staffO, OrganizationInput{Name: " Abrigo Esperança ", Contact: "(11) 5555-0000"})
	require.NoError(t, err)
	assert.Equal(t, "Abrigo Esperança", org.Name)
	assert.Equal(t, []string{"staff-o"}, org.MemberIDs)

	orgs, err := svc.ListForMember(ctx, w.staffO)
	require.NoError(t, err)
	ids := make([]string, len(orgs))
	for i, o := range orgs {
		ids[i] = o.ID
	}
	assert.ElementsMatch(t, []string{w.orgO, org.ID}, ids)
}

func TestOrganization_UpdateRequiresMembership(t *testing.T) {
	w := newWorld(t)
	svc := NewOrganizationService(w.st, w.bus, zap.NewNop())
	ctx := context.Background()
	in := OrganizationInput{Name: "Novo nome", Contact: "novo@example.com"}

	_, err := svc.Update(ctx, w.staffQ, w.orgO, in)
	var aerr *AuthorizationError
	require.ErrorAs(t, err, &aerr)

	org, err := svc.Update(ctx, w.staffO, w.orgO, in)
	require.NoError(t, err)
	assert.Equal(t, "Novo nome", org.Name)

	stored, err := svc.Get(ctx, w.orgO)
	require.NoError(t, err)
	assert.Equal(t, "novo@example.com", stored.Contact)
}

func TestOrganization_Members(t *testing.T) {
	w := newWorld(t)
	svc := NewOrganizationService(w.st, w.bus, zap.NewNop())
	ctx := context.Background()

	_, err := svc.AddMember(ctx, w.staffO, w.orgO, "adopter-a")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = svc.AddMember(ctx, w.staffO, w.orgO, "ghost")
	var nerr *NotFoundError
	require.ErrorAs(t, err, &nerr)

	org, err := svc.AddMember(ctx, w.staffO, w.orgO, "staff-q")
	require.NoError(t, err)
	assert.Equal(t, []string{"staff-o", "staff-q"}, org.MemberIDs)

	// adding twice changes nothing
	org, err = svc.AddMember(ctx, w.staffO, w.orgO, "staff-q")
	require.NoError(t, err)
	assert.Len(t, org.MemberIDs, 2)

	org, err = svc.RemoveMember(ctx, w.staffQ, w.orgO, "staff-o")
	require.NoError(t, err)
	assert.Equal(t, []string{"staff-q"}, org.MemberIDs)

	_, err = svc.RemoveMember(ctx, w.staffQ, w.orgO, "staff-q")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"userId"}, fields(verr))

	_, err = svc.RemoveMember(ctx, w.staffQ, w.orgO, "staff-o")
	require.ErrorAs(t, err, &nerr)

	assert.Equal(t,
		[]string{"organization.member_added", "organization.member_added", "organization.member_removed"},
		w.bus.types("organization:org-o"))
}

func TestOrganization_RequireMembership(t *testing.T) {
	w := newWorld(t)
	svc := NewOrganizationService(w.st, nil, zap.NewNop())
	ctx := context.Background()

	org, err := svc.RequireMembership(ctx, w.staffO)
	require.NoError(t, err)
	assert.Equal(t, w.orgO, org.ID)

	noOrg := w.staffO
	noOrg.ActiveOrganizationID = ""
	_, err = svc.RequireMembership(ctx, noOrg)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.RequireMembership(ctx, model.Session{UserID: "staff-q", Role: model.RoleProtetor, ActiveOrganizationID: w.orgO})
	var aerr *AuthorizationError
	assert.ErrorAs(t, err, &aerr)
}
