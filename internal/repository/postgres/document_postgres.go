package postgres

import (
	"context"
	"database/sql"

	"docintake/internal/model"
	"docintake/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

// Create inserts a new row; id and created_at come from the column defaults.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.DocumentRecord) (*model.DocumentRecord, error) {
	const q = `
		INSERT INTO documents (name, aadhaar_number, dob, address, gender, phone_number)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, name, aadhaar_number, dob, address, gender, phone_number, created_at
	`
	row := r.db.QueryRowContext(ctx, q,
		doc.Name,
		doc.AadhaarNumber,
		doc.DOB,
		doc.Address,
		doc.Gender,
		doc.PhoneNumber,
	)
	var out model.DocumentRecord
	if err := scan(row, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns all rows in insertion order.
func (r *DocumentPostgres) List(ctx context.Context) ([]model.DocumentRecord, error) {
	const q = `
		SELECT id, name, aadhaar_number, dob, address, gender, phone_number, created_at
		FROM documents
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.DocumentRecord, 0)
	for rows.Next() {
		var d model.DocumentRecord
		if err := scan(rows, &d); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner, d *model.DocumentRecord) error {
	if err := s.Scan(
		&d.ID,
		&d.Name,
		&d.AadhaarNumber,
		&d.DOB,
		&d.Address,
		&d.Gender,
		&d.PhoneNumber,
		&d.CreatedAt,
	); err != nil {
		return err
	}
	d.CreatedAt = d.CreatedAt.UTC()
	return nil
}
