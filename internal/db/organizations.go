package db

import (
	"context"
	"fmt"
	"time"

	"petadopt/internal/model"
	"petadopt/internal/store"

	"github.com/jackc/pgx/v5"
)

const organizationSelect = `SELECT o.id, o.name, o.contact, o.street, o.number, o.city, o.state,
		o.participants, o.created_by, o.created_at, o.updated_at,
		ARRAY(SELECT m.user_id FROM organization_members m
			WHERE m.organization_id = o.id ORDER BY m.added_at, m.user_id)
	FROM organizations o`

func scanOrganization(row rowScanner) (model.Organization, error) {
	var o model.Organization
	err := row.Scan(
		&o.ID, &o.Name, &o.Contact, &o.Address.Street, &o.Address.Number,
		&o.Address.City, &o.Address.State, &o.Participants, &o.CreatedBy,
		&o.CreatedAt, &o.UpdatedAt, &o.MemberIDs,
	)
	return o, translate(err)
}

func (q *Queries) CreateOrganization(ctx context.Context, o model.Organization) error {
	return pgx.BeginFunc(ctx, q.Pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO organizations (id, name, contact, street, number, city, state,
				participants, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			o.ID, o.Name, o.Contact, o.Address.Street, o.Address.Number, o.Address.City,
			o.Address.State, o.Participants, o.CreatedBy, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return translate(err)
		}
		for _, userID := range o.MemberIDs {
			if _, err := tx.Exec(ctx,
				"INSERT INTO organization_members (organization_id, user_id, added_at) VALUES ($1, $2, $3)",
				o.ID, userID, o.CreatedAt,
			); err != nil {
				return translate(err)
			}
		}
		return nil
	})
}

func (q *Queries) GetOrganization(ctx context.Context, id string) (model.Organization, error) {
	return scanOrganization(q.Pool.QueryRow(ctx, organizationSelect+" WHERE o.id = $1", id))
}

func (q *Queries) ListOrganizationsForMember(ctx context.Context, userID string) ([]model.Organization, error) {
	rows, err := q.Pool.Query(ctx,
		organizationSelect+`
		WHERE EXISTS (SELECT 1 FROM organization_members m
			WHERE m.organization_id = o.id AND m.user_id = $1)
		ORDER BY o.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orgs := make([]model.Organization, 0)
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

func (q *Queries) UpdateOrganization(ctx context.Context, o model.Organization) error {
	return expectOne(q.Pool.Exec(ctx,
		`UPDATE organizations SET name = $2, contact = $3, street = $4, number = $5,
			city = $6, state = $7, participants = $8, updated_at = $9
		WHERE id = $1`,
		o.ID, o.Name, o.Contact, o.Address.Street, o.Address.Number, o.Address.City,
		o.Address.State, o.Participants, o.UpdatedAt,
	))
}

func (q *Queries) AddOrganizationMember(ctx context.Context, organizationID, userID string, at time.Time) error {
	return pgx.BeginFunc(ctx, q.Pool, func(tx pgx.Tx) error {
		if err := expectOne(tx.Exec(ctx,
			"UPDATE organizations SET updated_at = $2 WHERE id = $1", organizationID, at,
		)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO organization_members (organization_id, user_id, added_at)
			VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			organizationID, userID, at,
		)
		return translate(err)
	})
}

func (q *Queries) RemoveOrganizationMember(ctx context.Context, organizationID, userID string, at time.Time) error {
	return pgx.BeginFunc(ctx, q.Pool, func(tx pgx.Tx) error {
		// Lock the organization row so concurrent removals see each other.
		if err := expectOne(tx.Exec(ctx,
			"UPDATE organizations SET updated_at = $2 WHERE id = $1", organizationID, at,
		)); err != nil {
			return err
		}

		var members int
		if err := tx.QueryRow(ctx,
			"SELECT COUNT(*) FROM organization_members WHERE organization_id = $1", organizationID,
		).Scan(&members); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			"DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2",
			organizationID, userID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("member %s: %w", userID, store.ErrNotFound)
		}
		if members <= 1 {
			return fmt.Errorf("organization must keep at least one member: %w", store.ErrConflict)
		}
		return nil
	})
}
