package db

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"petadopt/internal/model"
	"petadopt/internal/store"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testPool migrates and connects to TEST_DATABASE_URL, skipping without it.
func testPool(t *testing.T) *Pool {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, url, "up"))
	pool, err := NewPool(ctx, url, 4, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

type seeded struct {
	staff, adopter model.User
	org            model.Organization
	animal         model.Animal
}

func seed(t *testing.T, q *Queries) seeded {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	suffix := strings.ToLower(ulid.Make().String())

	s := seeded{
		staff:   model.User{ID: ulid.Make().String(), Name: "Olga", Email: "olga-" + suffix + "@example.com", Role: model.RoleProtetor, PasswordHash: "x", CreatedAt: now},
		adopter: model.User{ID: ulid.Make().String(), Name: "Ana", Email: "ana-" + suffix + "@example.com", Role: model.RoleAdotante, PasswordHash: "x", CreatedAt: now},
	}
	require.NoError(t, q.CreateUser(ctx, s.staff))
	require.NoError(t, q.CreateUser(ctx, s.adopter))

	s.org = model.Organization{
		ID: ulid.Make().String(), Name: "Patas " + suffix, Contact: "patas@example.com",
		Address:   model.OrganizationAddress{City: "Campinas", State: "SP"},
		MemberIDs: []string{s.staff.ID}, CreatedBy: s.staff.ID, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, q.CreateOrganization(ctx, s.org))

	orgID := s.org.ID
	s.animal = model.Animal{
		ID: ulid.Make().String(), Name: "Paçoca", Species: "cão", Sex: model.SexFemale,
		Age: model.Age{Value: 2, Unit: model.AgeYears}, Status: model.AnimalForAdoption,
		OrganizationID: &orgID, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, q.CreateAnimal(ctx, s.animal))
	return s
}

func pendingRequest(s seeded) model.AdoptionRequest {
	return model.AdoptionRequest{
		ID: ulid.Make().String(), AdopterID: s.adopter.ID, OrganizationID: s.org.ID, AnimalID: s.animal.ID,
		OrganizationName: s.org.Name, AnimalName: s.animal.Name,
		PersonalInfo: model.PersonalInfo{FullName: "Ana Souza", Email: "ana@example.com", BirthDate: "1990-04-12", Phone: "11 98765-4321"},
		PhotoURLs:    []string{"p1", "p2", "p3"},
		Declaration:  true,
		Status:       model.RequestPending,
		SubmittedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestQueries_DuplicateEmail(t *testing.T) {
	pool := testPool(t)
	s := seed(t, pool.Queries)

	dup := s.adopter
	dup.ID = ulid.Make().String()
	err := pool.Queries.CreateUser(context.Background(), dup)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestQueries_DecideApprovesAndAdopts(t *testing.T) {
	pool := testPool(t)
	q := pool.Queries
	ctx := context.Background()
	s := seed(t, q)

	req := pendingRequest(s)
	require.NoError(t, q.CreateAdoptionRequest(ctx, req))

	got, err := q.GetAdoptionRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.PhotoURLs, got.PhotoURLs)
	assert.Equal(t, req.PersonalInfo, got.PersonalInfo)

	decided, err := q.DecideAdoptionRequest(ctx, store.Decision{
		RequestID: req.ID, Status: model.RequestApproved, Message: "ok",
		RespondedAt: time.Now().UTC(), AdoptAnimal: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RequestApproved, decided.Status)
	require.NotNil(t, decided.ResponseMessage)
	assert.Equal(t, "ok", *decided.ResponseMessage)

	animal, err := q.GetAnimal(ctx, s.animal.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AnimalAdopted, animal.Status)

	// the conditional write loses once the request left pending
	_, err = q.DecideAdoptionRequest(ctx, store.Decision{
		RequestID: req.ID, Status: model.RequestRejected, Message: "late", RespondedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = q.CancelAdoptionRequest(ctx, req.ID, time.Now().UTC())
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = q.DecideAdoptionRequest(ctx, store.Decision{RequestID: "missing", Status: model.RequestApproved})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestQueries_ScopedListsAndMembers(t *testing.T) {
	pool := testPool(t)
	q := pool.Queries
	ctx := context.Background()
	s := seed(t, q)

	first := pendingRequest(s)
	require.NoError(t, q.CreateAdoptionRequest(ctx, first))
	second := pendingRequest(s)
	second.SubmittedAt = first.SubmittedAt.Add(time.Minute)
	require.NoError(t, q.CreateAdoptionRequest(ctx, second))

	mine, err := q.ListAdoptionRequestsByAdopter(ctx, s.adopter.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)

	byOrg, err := q.ListAdoptionRequestsByOrganization(ctx, s.org.ID)
	require.NoError(t, err)
	assert.Len(t, byOrg, 2)

	other := model.User{ID: ulid.Make().String(), Name: "Rui", Email: "rui-" + strings.ToLower(ulid.Make().String()) + "@example.com", Role: model.RoleProtetor, PasswordHash: "x", CreatedAt: time.Now().UTC()}
	require.NoError(t, q.CreateUser(ctx, other))
	require.NoError(t, q.AddOrganizationMember(ctx, s.org.ID, other.ID, time.Now().UTC()))

	orgs, err := q.ListOrganizationsForMember(ctx, other.ID)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.ElementsMatch(t, []string{s.staff.ID, other.ID}, orgs[0].MemberIDs)

	require.NoError(t, q.RemoveOrganizationMember(ctx, s.org.ID, other.ID, time.Now().UTC()))
	orgs, err = q.ListOrganizationsForMember(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, orgs)
}
