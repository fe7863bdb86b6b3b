package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"petadopt/internal/model"
	"petadopt/internal/store"
)

const animalColumns = `id, name, species, age_value, age_unit, sex, sterilized, status,
	description, photo_url, organization_id, created_at, updated_at`

func scanAnimal(row rowScanner) (model.Animal, error) {
	var a model.Animal
	var unit, sex, status string
	err := row.Scan(
		&a.ID, &a.Name, &a.Species, &a.Age.Value, &unit, &sex, &a.Sterilized, &status,
		&a.Description, &a.PhotoURL, &a.OrganizationID, &a.CreatedAt, &a.UpdatedAt,
	)
	a.Age.Unit = model.AgeUnit(unit)
	a.Sex = model.Sex(sex)
	a.Status = model.AnimalStatus(status)
	return a, translate(err)
}

func (q *Queries) CreateAnimal(ctx context.Context, a model.Animal) error {
	_, err := q.Pool.Exec(ctx,
		"INSERT INTO animals ("+animalColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)",
		a.ID, a.Name, a.Species, a.Age.Value, string(a.Age.Unit), string(a.Sex), a.Sterilized,
		string(a.Status), a.Description, a.PhotoURL, a.OrganizationID, a.CreatedAt, a.UpdatedAt,
	)
	return translate(err)
}

func (q *Queries) GetAnimal(ctx context.Context, id string) (model.Animal, error) {
	return scanAnimal(q.Pool.QueryRow(ctx, "SELECT "+animalColumns+" FROM animals WHERE id = $1", id))
}

func (q *Queries) UpdateAnimal(ctx context.Context, a model.Animal) error {
	return expectOne(q.Pool.Exec(ctx,
		`UPDATE animals SET name = $2, species = $3, age_value = $4, age_unit = $5, sex = $6,
			sterilized = $7, status = $8, description = $9, photo_url = $10, updated_at = $11
		WHERE id = $1`,
		a.ID, a.Name, a.Species, a.Age.Value, string(a.Age.Unit), string(a.Sex), a.Sterilized,
		string(a.Status), a.Description, a.PhotoURL, a.UpdatedAt,
	))
}

func (q *Queries) SetAnimalStatus(ctx context.Context, id string, status model.AnimalStatus, at time.Time) error {
	return expectOne(q.Pool.Exec(ctx,
		"UPDATE animals SET status = $2, updated_at = $3 WHERE id = $1",
		id, string(status), at,
	))
}

func (q *Queries) DeleteAnimal(ctx context.Context, id string) error {
	return expectOne(q.Pool.Exec(ctx, "DELETE FROM animals WHERE id = $1", id))
}

func (q *Queries) SearchAnimals(ctx context.Context, f store.AnimalFilter) ([]model.Animal, error) {
	var where []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if f.Species != "" {
		add("lower(species) = lower($%d)", f.Species)
	}
	if f.Sex != "" {
		add("sex = $%d", string(f.Sex))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.OrganizationID != "" {
		add("organization_id = $%d", f.OrganizationID)
	}
	if name := strings.TrimSpace(f.Name); name != "" {
		add("name ILIKE '%%' || $%d || '%%'", escapeLike(name))
	}

	query := "SELECT " + animalColumns + " FROM animals"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY lower(name), id"

	rows, err := q.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	animals := make([]model.Animal, 0)
	for rows.Next() {
		a, err := scanAnimal(rows)
		if err != nil {
			return nil, err
		}
		animals = append(animals, a)
	}
	return animals, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
