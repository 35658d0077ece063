package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"datacatalog/pkg/model"

	"github.com/google/uuid"
)

const userColumns = `id, name, fullname, email, sysadmin, state, created`

func (s *Session) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.State == "" {
		u.State = model.StateActive
	}
	if u.Created.IsZero() {
		u.Created = s.Now()
	}

	_, err := s.exec(ctx,
		`INSERT INTO "user" (id, name, fullname, email, sysadmin, state, created)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, nullString(u.Fullname), nullString(u.Email), boolInt(u.Sysadmin), u.State, formatTime(u.Created),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Session) GetUser(ctx context.Context, id string) (*model.User, error) {
	row, err := s.queryRow(ctx, `SELECT `+userColumns+` FROM "user" WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", id)
	}
	return u, err
}

func (s *Session) UserByName(ctx context.Context, name string) (*model.User, error) {
	row, err := s.queryRow(ctx, `SELECT `+userColumns+` FROM "user" WHERE name = ?`, name)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", name)
	}
	return u, err
}

// DeleteUser removes the user row. API tokens owned by the user go with it.
func (s *Session) DeleteUser(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM "user" WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanUser(sc scanner) (*model.User, error) {
	var u model.User
	var fullname, email sql.NullString
	var sysadmin int
	var created string
	if err := sc.Scan(&u.ID, &u.Name, &fullname, &email, &sysadmin, &u.State, &created); err != nil {
		return nil, err
	}
	u.Fullname = stringPtr(fullname)
	u.Email = stringPtr(email)
	u.Sysadmin = sysadmin == 1
	u.Created = parseTime(created)
	return &u, nil
}
