package model

import (
	"fmt"
	"time"
)

// Role is the closed set of user roles.
type Role string

const (
	RoleProtetor Role = "protetor"
	RoleAdotante Role = "adotante"
)

// ParseRole accepts only the known roles.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleProtetor:
		return RoleProtetor, nil
	case RoleAdotante:
		return RoleAdotante, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// RequestStatus is the adoption request state
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestApproved  RequestStatus = "approved"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestPending:
		return false
	case RequestApproved, RequestRejected, RequestCancelled:
		return true
	default:
		return true
	}
}

// AnimalStatus represents animal lifecycle status
type AnimalStatus string

const (
	AnimalForAdoption AnimalStatus = "para_adocao"
	AnimalAdopted     AnimalStatus = "adotado"
	AnimalInTreatment AnimalStatus = "em_tratamento"
)

func (s AnimalStatus) Valid() bool {
	switch s {
	case AnimalForAdoption, AnimalAdopted, AnimalInTreatment:
		return true
	}
	return false
}

type Sex string

const (
	SexMale   Sex = "macho"
	SexFemale Sex = "femea"
)

func (s Sex) Valid() bool {
	return s == SexMale || s == SexFemale
}

type AgeUnit string

const (
	AgeYears  AgeUnit = "anos"
	AgeMonths AgeUnit = "meses"
)

type ProcedureCategory string

const (
	CategoryVaccine    ProcedureCategory = "vacina"
	CategorySurgery    ProcedureCategory = "cirurgia"
	CategoryCheckup    ProcedureCategory = "consulta"
	CategoryExam       ProcedureCategory = "exame"
	CategoryMedication ProcedureCategory = "medicamento"
	CategoryTreatment  ProcedureCategory = "tratamento"
	CategoryOther      ProcedureCategory = "outros"
)

func (c ProcedureCategory) Valid() bool {
	switch c {
	case CategoryVaccine, CategorySurgery, CategoryCheckup, CategoryExam,
		CategoryMedication, CategoryTreatment, CategoryOther:
		return true
	}
	return false
}

// Session carries the caller identity and the organization selected for
// this session. It is passed explicitly into every scoped call.
type Session struct {
	UserID               string
	Role                 Role
	ActiveOrganizationID string
}

// User is a registered account
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type OrganizationAddress struct {
	Street string `json:"street"`
	Number string `json:"number"`
	City   string `json:"city"`
	State  string `json:"state"`
}

// Organization is a shelter (ONG) with one or more protetor members
type Organization struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Contact      string              `json:"contact"`
	Address      OrganizationAddress `json:"address"`
	MemberIDs    []string            `json:"memberIds"`
	Participants string              `json:"participants,omitempty"`
	CreatedBy    string              `json:"createdBy"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// HasMember reports whether userID belongs to the organization.
func (o Organization) HasMember(userID string) bool {
	for _, id := range o.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type Age struct {
	Value int     `json:"value"`
	Unit  AgeUnit `json:"unit"`
}

// Animal is an animal profile
type Animal struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Species        string       `json:"species"`
	Age            Age          `json:"age"`
	Sex            Sex          `json:"sex"`
	Sterilized     bool         `json:"sterilized"`
	Status         AnimalStatus `json:"status"`
	Description    string       `json:"description,omitempty"`
	PhotoURL       string       `json:"photoUrl,omitempty"`
	OrganizationID *string      `json:"organizationId,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// OwnedBy reports whether the animal belongs to organizationID.
func (a Animal) OwnedBy(organizationID string) bool {
	return a.OrganizationID != nil && *a.OrganizationID == organizationID
}

// Procedure is a medical record entry attached to one animal
type Procedure struct {
	ID          string            `json:"id"`
	AnimalID    string            `json:"animalId"`
	Description string            `json:"description"`
	Category    ProcedureCategory `json:"category"`
	PerformedOn time.Time         `json:"performedOn"`
	CreatedAt   time.Time         `json:"createdAt"`
}

type PersonalInfo struct {
	FullName  string `json:"fullName"`
	Email     string `json:"email"`
	BirthDate string `json:"birthDate"`
	Phone     string `json:"phone"`
}

type RequestAddress struct {
	Street   string `json:"street"`
	Number   string `json:"number"`
	Zip      string `json:"zip"`
	District string `json:"district"`
	City     string `json:"city"`
	State    string `json:"state"`
}

type HomeInfo struct {
	DwellingType            string `json:"dwellingType"`
	AnimalsAllowed          bool   `json:"animalsAllowed"`
	HasEnclosure            bool   `json:"hasEnclosure"`
	OtherPetsDescription    string `json:"otherPetsDescription"`
	PriorPetsHistory        string `json:"priorPetsHistory"`
	TerritorialConflictPlan string `json:"territorialConflictPlan"`
	AwareOfLifespan         bool   `json:"awareOfLifespan"`
	FamilyAgrees            bool   `json:"familyAgrees"`
	AgreesToSendUpdates     bool   `json:"agreesToSendUpdates"`
}

// AdoptionRequest is an adopter's application for one animal.
// OrganizationName and AnimalName are snapshots taken at submission and are
// not refreshed when the referenced records change.
type AdoptionRequest struct {
	ID               string         `json:"id"`
	AdopterID        string         `json:"adopterId"`
	OrganizationID   string         `json:"organizationId"`
	AnimalID         string         `json:"animalId"`
	OrganizationName string         `json:"organizationName"`
	AnimalName       string         `json:"animalName"`
	PersonalInfo     PersonalInfo   `json:"personalInfo"`
	Address          RequestAddress `json:"address"`
	HomeInfo         HomeInfo       `json:"homeInfo"`
	PhotoURLs        []string       `json:"photoUrls"`
	Declaration      bool           `json:"declaration"`
	Status           RequestStatus  `json:"status"`
	ResponseMessage  *string        `json:"responseMessage,omitempty"`
	SubmittedAt      time.Time      `json:"submittedAt"`
	RespondedAt      *time.Time     `json:"respondedAt,omitempty"`
}
