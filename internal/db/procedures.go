package db

import (
	"context"

	"petadopt/internal/model"
)

const procedureColumns = "id, animal_id, description, category, performed_on, created_at"

func scanProcedure(row rowScanner) (model.Procedure, error) {
	var p model.Procedure
	var category string
	err := row.Scan(&p.ID, &p.AnimalID, &p.Description, &category, &p.PerformedOn, &p.CreatedAt)
	p.Category = model.ProcedureCategory(category)
	return p, translate(err)
}

func (q *Queries) CreateProcedure(ctx context.Context, p model.Procedure) error {
	_, err := q.Pool.Exec(ctx,
		"INSERT INTO procedures ("+procedureColumns+") VALUES ($1, $2, $3, $4, $5, $6)",
		p.ID, p.AnimalID, p.Description, string(p.Category), p.PerformedOn, p.CreatedAt,
	)
	return translate(err)
}

func (q *Queries) GetProcedure(ctx context.Context, id string) (model.Procedure, error) {
	return scanProcedure(q.Pool.QueryRow(ctx, "SELECT "+procedureColumns+" FROM procedures WHERE id = $1", id))
}

func (q *Queries) ListProcedures(ctx context.Context, animalID string) ([]model.Procedure, error) {
	rows, err := q.Pool.Query(ctx,
		"SELECT "+procedureColumns+" FROM procedures WHERE animal_id = $1 ORDER BY performed_on DESC, id",
		animalID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	procedures := make([]model.Procedure, 0)
	for rows.Next() {
		p, err := scanProcedure(rows)
		if err != nil {
			return nil, err
		}
		procedures = append(procedures, p)
	}
	return procedures, rows.Err()
}

func (q *Queries) DeleteProcedure(ctx context.Context, id string) error {
	return expectOne(q.Pool.Exec(ctx, "DELETE FROM procedures WHERE id = $1", id))
}
