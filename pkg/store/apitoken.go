package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"datacatalog/pkg/model"
)

const apiTokenColumns = `id, name, user_id, created_at, last_access, plugin_extras`

// CreateAPIToken inserts a token whose ID has already been generated.
func (s *Session) CreateAPIToken(ctx context.Context, t *model.APIToken) error {
	if t.ID == "" {
		return errors.New("api token id is required")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.Now()
	}

	var extras any
	if t.PluginExtras != nil {
		encoded, err := encodeJSON(t.PluginExtras)
		if err != nil {
			return err
		}
		extras = encoded
	}

	_, err := s.exec(ctx,
		`INSERT INTO api_token (`+apiTokenColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.UserID, formatTime(t.CreatedAt), nullTime(t.LastAccess), extras,
	)
	if err != nil {
		return fmt.Errorf("failed to create api token: %w", err)
	}
	return nil
}

func (s *Session) GetAPIToken(ctx context.Context, id string) (*model.APIToken, error) {
	row, err := s.queryRow(ctx, `SELECT `+apiTokenColumns+` FROM api_token WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	t, err := scanAPIToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("api token", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query api token: %w", err)
	}
	return t, nil
}

// DeleteAPIToken reports whether a row was removed.
func (s *Session) DeleteAPIToken(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM api_token WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete api token: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Session) SetAPITokenLastAccess(ctx context.Context, id string, at time.Time) error {
	_, err := s.exec(ctx, `UPDATE api_token SET last_access = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to update api token: %w", err)
	}
	return nil
}

// ReplaceAPITokenExtras overwrites the whole plugin_extras document.
func (s *Session) ReplaceAPITokenExtras(ctx context.Context, id string, extras map[string]any) error {
	encoded, err := encodeJSON(extras)
	if err != nil {
		return err
	}
	if _, err := s.exec(ctx, `UPDATE api_token SET plugin_extras = ? WHERE id = ?`, encoded, id); err != nil {
		return fmt.Errorf("failed to update api token extras: %w", err)
	}
	return nil
}

// UserAPITokens lists a user's tokens, oldest first.
func (s *Session) UserAPITokens(ctx context.Context, userID string) ([]model.APIToken, error) {
	rows, err := s.query(ctx,
		`SELECT `+apiTokenColumns+` FROM api_token WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query api tokens: %w", err)
	}
	return collect(rows, func(sc scanner) (model.APIToken, error) {
		t, err := scanAPIToken(sc)
		if err != nil {
			return model.APIToken{}, fmt.Errorf("failed to scan api token: %w", err)
		}
		return *t, nil
	})
}

func scanAPIToken(sc scanner) (*model.APIToken, error) {
	var t model.APIToken
	var created string
	var lastAccess, extras sql.NullString
	if err := sc.Scan(&t.ID, &t.Name, &t.UserID, &created, &lastAccess, &extras); err != nil {
		return nil, err
	}
	t.CreatedAt = parseTime(created)
	t.LastAccess = timePtr(lastAccess)

	var err error
	if t.PluginExtras, err = decodeJSON(extras); err != nil {
		return nil, err
	}
	return &t, nil
}
