// Package store defines the persistence contract shared by the Postgres and
// in-memory backends. Every list query takes its scoping key as a required
// argument so callers cannot read across adopters or organizations.
package store

import (
	"context"
	"errors"
	"time"

	"petadopt/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write loses, or a
	// uniqueness or membership constraint would be violated.
	ErrConflict = errors.New("conflict")
)

type AnimalFilter struct {
	Species        string
	Sex            model.Sex
	Status         model.AnimalStatus
	Name           string // case-insensitive substring
	OrganizationID string
}

// Decision is a pending -> approved/rejected transition. When AdoptAnimal is
// set the animal status update is applied atomically with the request.
type Decision struct {
	RequestID   string
	Status      model.RequestStatus
	Message     string
	RespondedAt time.Time
	AdoptAnimal bool
}

type Users interface {
	CreateUser(ctx context.Context, u model.User) error
	GetUserByID(ctx context.Context, id string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
}

type Organizations interface {
	CreateOrganization(ctx context.Context, o model.Organization) error
	GetOrganization(ctx context.Context, id string) (model.Organization, error)
	ListOrganizationsForMember(ctx context.Context, userID string) ([]model.Organization, error)
	UpdateOrganization(ctx context.Context, o model.Organization) error
	AddOrganizationMember(ctx context.Context, organizationID, userID string, at time.Time) error
	// RemoveOrganizationMember returns ErrConflict when userID is the last member.
	RemoveOrganizationMember(ctx context.Context, organizationID, userID string, at time.Time) error
}

type Animals interface {
	CreateAnimal(ctx context.Context, a model.Animal) error
	GetAnimal(ctx context.Context, id string) (model.Animal, error)
	UpdateAnimal(ctx context.Context, a model.Animal) error
	SetAnimalStatus(ctx context.Context, id string, status model.AnimalStatus, at time.Time) error
	DeleteAnimal(ctx context.Context, id string) error
	SearchAnimals(ctx context.Context, f AnimalFilter) ([]model.Animal, error)
}

type Procedures interface {
	CreateProcedure(ctx context.Context, p model.Procedure) error
	GetProcedure(ctx context.Context, id string) (model.Procedure, error)
	ListProcedures(ctx context.Context, animalID string) ([]model.Procedure, error)
	DeleteProcedure(ctx context.Context, id string) error
}

type AdoptionRequests interface {
	CreateAdoptionRequest(ctx context.Context, r model.AdoptionRequest) error
	GetAdoptionRequest(ctx context.Context, id string) (model.AdoptionRequest, error)
	ListAdoptionRequestsByAdopter(ctx context.Context, adopterID string) ([]model.AdoptionRequest, error)
	ListAdoptionRequestsByOrganization(ctx context.Context, organizationID string) ([]model.AdoptionRequest, error)
	// DecideAdoptionRequest returns ErrConflict if the request is no longer pending.
	DecideAdoptionRequest(ctx context.Context, d Decision) (model.AdoptionRequest, error)
	// CancelAdoptionRequest returns ErrConflict if the request is no longer pending.
	CancelAdoptionRequest(ctx context.Context, id string, at time.Time) (model.AdoptionRequest, error)
	ListAdoptionPhotoURLs(ctx context.Context) ([]string, error)
}

// Store is the full persistence surface.
type Store interface {
	Users
	Organizations
	Animals
	Procedures
	AdoptionRequests
}
