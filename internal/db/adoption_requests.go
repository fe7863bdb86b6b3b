package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"petadopt/internal/model"
	"petadopt/internal/store"

	"github.com/jackc/pgx/v5"
)

const adoptionRequestColumns = `id, adopter_id, organization_id, animal_id, organization_name,
	animal_name, personal_info, address, home_info, photo_urls, declaration, status,
	response_message, submitted_at, responded_at`

func scanAdoptionRequest(row rowScanner) (model.AdoptionRequest, error) {
	var r model.AdoptionRequest
	var status string
	err := row.Scan(
		&r.ID, &r.AdopterID, &r.OrganizationID, &r.AnimalID, &r.OrganizationName,
		&r.AnimalName, &r.PersonalInfo, &r.Address, &r.HomeInfo, &r.PhotoURLs,
		&r.Declaration, &status, &r.ResponseMessage, &r.SubmittedAt, &r.RespondedAt,
	)
	r.Status = model.RequestStatus(status)
	return r, translate(err)
}

func collectAdoptionRequests(rows pgx.Rows) ([]model.AdoptionRequest, error) {
	defer rows.Close()
	requests := make([]model.AdoptionRequest, 0)
	for rows.Next() {
		r, err := scanAdoptionRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func (q *Queries) CreateAdoptionRequest(ctx context.Context, r model.AdoptionRequest) error {
	_, err := q.Pool.Exec(ctx,
		"INSERT INTO adoption_requests ("+adoptionRequestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		r.ID, r.AdopterID, r.OrganizationID, r.AnimalID, r.OrganizationName, r.AnimalName,
		r.PersonalInfo, r.Address, r.HomeInfo, r.PhotoURLs, r.Declaration, string(r.Status),
		r.ResponseMessage, r.SubmittedAt, r.RespondedAt,
	)
	return translate(err)
}

func (q *Queries) GetAdoptionRequest(ctx context.Context, id string) (model.AdoptionRequest, error) {
	return scanAdoptionRequest(q.Pool.QueryRow(ctx,
		"SELECT "+adoptionRequestColumns+" FROM adoption_requests WHERE id = $1", id))
}

func (q *Queries) ListAdoptionRequestsByAdopter(ctx context.Context, adopterID string) ([]model.AdoptionRequest, error) {
	rows, err := q.Pool.Query(ctx,
		"SELECT "+adoptionRequestColumns+` FROM adoption_requests
		WHERE adopter_id = $1 ORDER BY submitted_at DESC, id DESC`,
		adopterID,
	)
	if err != nil {
		return nil, err
	}
	return collectAdoptionRequests(rows)
}

func (q *Queries) ListAdoptionRequestsByOrganization(ctx context.Context, organizationID string) ([]model.AdoptionRequest, error) {
	rows, err := q.Pool.Query(ctx,
		"SELECT "+adoptionRequestColumns+` FROM adoption_requests
		WHERE organization_id = $1 ORDER BY submitted_at DESC, id DESC`,
		organizationID,
	)
	if err != nil {
		return nil, err
	}
	return collectAdoptionRequests(rows)
}

// DecideAdoptionRequest applies the decision with a conditional write on
// status = 'pending'. Approval flips the animal to adopted in the same
// transaction.
func (q *Queries) DecideAdoptionRequest(ctx context.Context, d store.Decision) (model.AdoptionRequest, error) {
	var decided model.AdoptionRequest
	err := pgx.BeginFunc(ctx, q.Pool, func(tx pgx.Tx) error {
		r, err := scanAdoptionRequest(tx.QueryRow(ctx,
			`UPDATE adoption_requests
			SET status = $2, response_message = $3, responded_at = $4
			WHERE id = $1 AND status = 'pending'
			RETURNING `+adoptionRequestColumns,
			d.RequestID, string(d.Status), d.Message, d.RespondedAt,
		))
		if errors.Is(err, store.ErrNotFound) {
			return q.missingOrConflict(ctx, tx, d.RequestID)
		}
		if err != nil {
			return err
		}

		if d.AdoptAnimal {
			if err := expectOne(tx.Exec(ctx,
				"UPDATE animals SET status = $2, updated_at = $3 WHERE id = $1",
				r.AnimalID, string(model.AnimalAdopted), d.RespondedAt,
			)); err != nil {
				return fmt.Errorf("animal %s: %w", r.AnimalID, err)
			}
		}
		decided = r
		return nil
	})
	return decided, err
}

func (q *Queries) CancelAdoptionRequest(ctx context.Context, id string, at time.Time) (model.AdoptionRequest, error) {
	var cancelled model.AdoptionRequest
	err := pgx.BeginFunc(ctx, q.Pool, func(tx pgx.Tx) error {
		r, err := scanAdoptionRequest(tx.QueryRow(ctx,
			`UPDATE adoption_requests SET status = 'cancelled', responded_at = $2
			WHERE id = $1 AND status = 'pending'
			RETURNING `+adoptionRequestColumns,
			id, at,
		))
		if errors.Is(err, store.ErrNotFound) {
			return q.missingOrConflict(ctx, tx, id)
		}
		cancelled = r
		return err
	})
	return cancelled, err
}

// missingOrConflict tells a lost conditional write apart from a missing row.
func (q *Queries) missingOrConflict(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM adoption_requests WHERE id = $1)", id,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return fmt.Errorf("request %s is no longer pending: %w", id, store.ErrConflict)
}

func (q *Queries) ListAdoptionPhotoURLs(ctx context.Context) ([]string, error) {
	rows, err := q.Pool.Query(ctx, "SELECT DISTINCT unnest(photo_urls) FROM adoption_requests")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
