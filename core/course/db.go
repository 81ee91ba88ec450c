package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("course not found")

const qSelect = `
	SELECT course_id, name, description, image_url, price, created_at, updated_at
	FROM courses`

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Course, error) {
	var c Course
	if err := sqlx.GetContext(ctx, db, &c, qSelect+` WHERE course_id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Course{}, ErrNotFound
		}
		return Course{}, fmt.Errorf("selecting course[%s]: %w", id, err)
	}
	return c, nil
}

func FetchAll(ctx context.Context, db sqlx.ExtContext) ([]Course, error) {
	cs := []Course{}
	if err := sqlx.SelectContext(ctx, db, &cs, qSelect+` ORDER BY name`); err != nil {
		return nil, fmt.Errorf("selecting courses: %w", err)
	}
	return cs, nil
}

func Create(ctx context.Context, db sqlx.ExtContext, c Course) error {
	const q = `
		INSERT INTO courses (course_id, name, description, image_url, price, created_at, updated_at)
		VALUES (:course_id, :name, :description, :image_url, :price, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, db, q, c); err != nil {
		return fmt.Errorf("inserting course: %w", err)
	}
	return nil
}
