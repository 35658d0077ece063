package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"datacatalog/pkg/model"

	"github.com/google/uuid"
)

const activityColumns = `id, user_id, object_id, activity_type, timestamp, data`

func (s *Session) CreateActivity(ctx context.Context, a *model.Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = s.Now()
	}
	data, err := encodeJSON(a.Data)
	if err != nil {
		return err
	}

	_, err = s.exec(ctx,
		`INSERT INTO activity (`+activityColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		a.ID, a.UserID, a.ObjectID, a.ActivityType, formatTime(a.Timestamp), data,
	)
	if err != nil {
		return fmt.Errorf("failed to create activity: %w", err)
	}
	return nil
}

func (s *Session) GetActivity(ctx context.Context, id string) (*model.Activity, error) {
	row, err := s.queryRow(ctx, `SELECT `+activityColumns+` FROM activity WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("activity", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	return a, nil
}

// ObjectActivities returns the newest activities about an object first.
func (s *Session) ObjectActivities(ctx context.Context, objectID string, limit int) ([]model.Activity, error) {
	if limit <= 0 {
		limit = 31
	}
	rows, err := s.query(ctx,
		`SELECT `+activityColumns+` FROM activity WHERE object_id = ?
		 ORDER BY timestamp DESC LIMIT ?`, objectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	return collect(rows, func(sc scanner) (model.Activity, error) {
		a, err := scanActivity(sc)
		if err != nil {
			return model.Activity{}, fmt.Errorf("failed to scan activity: %w", err)
		}
		return *a, nil
	})
}

func scanActivity(sc scanner) (*model.Activity, error) {
	var a model.Activity
	var ts string
	var data sql.NullString
	if err := sc.Scan(&a.ID, &a.UserID, &a.ObjectID, &a.ActivityType, &ts, &data); err != nil {
		return nil, err
	}
	a.Timestamp = parseTime(ts)

	var err error
	if a.Data, err = decodeJSON(data); err != nil {
		return nil, err
	}
	return &a, nil
}
