package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"datacatalog/pkg/model"

	"github.com/google/uuid"
)

const resourceColumns = `id, package_id, name, description, format, url, url_type, mimetype,
	mimetype_inner, size, hash, resource_type, cache_url, cache_last_updated, last_modified,
	position, state, extras, created, metadata_modified`

func (s *Session) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	row, err := s.queryRow(ctx, `SELECT `+resourceColumns+` FROM resource WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("resource", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query resource: %w", err)
	}
	return r, nil
}

// SaveResource inserts the resource or overwrites the stored row with the
// same id.
func (s *Session) SaveResource(ctx context.Context, r *model.Resource) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.State == "" {
		r.State = model.StateActive
	}
	now := s.Now()
	if r.Created.IsZero() {
		r.Created = now
	}
	if r.MetadataModified.IsZero() {
		r.MetadataModified = now
	}
	extras, err := encodeJSON(r.Extras)
	if err != nil {
		return err
	}

	var size any
	if r.Size != nil {
		size = *r.Size
	}

	_, err = s.exec(ctx,
		`INSERT INTO resource (`+resourceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			package_id = excluded.package_id, name = excluded.name, description = excluded.description,
			format = excluded.format, url = excluded.url, url_type = excluded.url_type,
			mimetype = excluded.mimetype, mimetype_inner = excluded.mimetype_inner, size = excluded.size,
			hash = excluded.hash, resource_type = excluded.resource_type, cache_url = excluded.cache_url,
			cache_last_updated = excluded.cache_last_updated, last_modified = excluded.last_modified,
			position = excluded.position, state = excluded.state, extras = excluded.extras,
			metadata_modified = excluded.metadata_modified`,
		r.ID, r.PackageID, nullString(r.Name), nullString(r.Description), nullString(r.Format), r.URL,
		nullString(r.URLType), nullString(r.Mimetype), nullString(r.MimetypeInner), size, r.Hash,
		nullString(r.ResourceType), nullString(r.CacheURL), nullTime(r.CacheLastUpdated), nullTime(r.LastModified),
		r.Position, r.State, extras, formatTime(r.Created), formatTime(r.MetadataModified),
	)
	if err != nil {
		return fmt.Errorf("failed to save resource: %w", err)
	}
	return nil
}

// PackageResources returns the active resources of a package by position.
func (s *Session) PackageResources(ctx context.Context, packageID string) ([]model.Resource, error) {
	rows, err := s.query(ctx,
		`SELECT `+resourceColumns+` FROM resource
		 WHERE package_id = ? AND state = 'active' ORDER BY position, created`, packageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	return collect(rows, func(sc scanner) (model.Resource, error) {
		r, err := scanResource(sc)
		if err != nil {
			return model.Resource{}, fmt.Errorf("failed to scan resource: %w", err)
		}
		return *r, nil
	})
}

// NextResourcePosition is the position a new resource appended to the
// package should take.
func (s *Session) NextResourcePosition(ctx context.Context, packageID string) (int, error) {
	row, err := s.queryRow(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM resource WHERE package_id = ? AND state = 'active'`, packageID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to compute resource position: %w", err)
	}
	return n, nil
}

func scanResource(sc scanner) (*model.Resource, error) {
	var r model.Resource
	var name, description, format, urlType, mimetype, mimetypeInner sql.NullString
	var resourceType, cacheURL, cacheLastUpdated, lastModified, extras sql.NullString
	var size sql.NullInt64
	var created, modified string

	if err := sc.Scan(&r.ID, &r.PackageID, &name, &description, &format, &r.URL, &urlType, &mimetype,
		&mimetypeInner, &size, &r.Hash, &resourceType, &cacheURL, &cacheLastUpdated, &lastModified,
		&r.Position, &r.State, &extras, &created, &modified); err != nil {
		return nil, err
	}

	r.Name = stringPtr(name)
	r.Description = stringPtr(description)
	r.Format = stringPtr(format)
	r.URLType = stringPtr(urlType)
	r.Mimetype = stringPtr(mimetype)
	r.MimetypeInner = stringPtr(mimetypeInner)
	r.ResourceType = stringPtr(resourceType)
	r.CacheURL = stringPtr(cacheURL)
	r.CacheLastUpdated = timePtr(cacheLastUpdated)
	r.LastModified = timePtr(lastModified)
	if size.Valid {
		v := size.Int64
		r.Size = &v
	}
	r.Created = parseTime(created)
	r.MetadataModified = parseTime(modified)

	var err error
	if r.Extras, err = decodeJSON(extras); err != nil {
		return nil, err
	}
	return &r, nil
}
