package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"datacatalog/pkg/model"

	"github.com/google/uuid"
)

func (s *Session) CreateVocabulary(ctx context.Context, v *model.Vocabulary) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if _, err := s.exec(ctx, `INSERT INTO vocabulary (id, name) VALUES (?, ?)`, v.ID, v.Name); err != nil {
		return fmt.Errorf("failed to create vocabulary: %w", err)
	}
	return nil
}

func (s *Session) GetVocabulary(ctx context.Context, id string) (*model.Vocabulary, error) {
	return s.getVocabulary(ctx, `id = ?`, id)
}

func (s *Session) VocabularyByName(ctx context.Context, name string) (*model.Vocabulary, error) {
	return s.getVocabulary(ctx, `name = ?`, name)
}

func (s *Session) getVocabulary(ctx context.Context, where, arg string) (*model.Vocabulary, error) {
	row, err := s.queryRow(ctx, `SELECT id, name FROM vocabulary WHERE `+where, arg)
	if err != nil {
		return nil, err
	}
	var v model.Vocabulary
	err = row.Scan(&v.ID, &v.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("vocabulary", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vocabulary: %w", err)
	}
	return &v, nil
}

// CreateTag returns the existing tag with the same name and vocabulary, or
// inserts a new one.
func (s *Session) CreateTag(ctx context.Context, name string, vocabularyID *string) (*model.Tag, error) {
	existing, err := s.TagByName(ctx, name, vocabularyID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	t := &model.Tag{ID: uuid.New().String(), Name: name, VocabularyID: vocabularyID}
	if _, err := s.exec(ctx, `INSERT INTO tag (id, name, vocabulary_id) VALUES (?, ?, ?)`,
		t.ID, t.Name, nullString(t.VocabularyID)); err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}
	return t, nil
}

func (s *Session) GetTag(ctx context.Context, id string) (*model.Tag, error) {
	row, err := s.queryRow(ctx, `SELECT id, name, vocabulary_id FROM tag WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	t, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("tag", id)
	}
	return t, err
}

// TagByName finds a tag by name within a vocabulary, or among free tags
// when vocabularyID is nil.
func (s *Session) TagByName(ctx context.Context, name string, vocabularyID *string) (*model.Tag, error) {
	query := `SELECT id, name, vocabulary_id FROM tag WHERE name = ? AND vocabulary_id IS NULL`
	args := []any{name}
	if vocabularyID != nil {
		query = `SELECT id, name, vocabulary_id FROM tag WHERE name = ? AND vocabulary_id = ?`
		args = append(args, *vocabularyID)
	}

	row, err := s.queryRow(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	t, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("tag", name)
	}
	return t, err
}

// TagPackage attaches a tag to a package, creating the tag on first use.
func (s *Session) TagPackage(ctx context.Context, packageID, name string, vocabularyID *string) (*model.Tag, error) {
	t, err := s.CreateTag(ctx, name, vocabularyID)
	if err != nil {
		return nil, err
	}
	_, err = s.exec(ctx,
		`INSERT INTO package_tag (id, package_id, tag_id, state) VALUES (?, ?, ?, 'active')
		 ON CONFLICT (package_id, tag_id) DO UPDATE SET state = 'active'`,
		uuid.New().String(), packageID, t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to tag package: %w", err)
	}
	return t, nil
}

// PackageTags returns the tags attached to a package ordered by name.
func (s *Session) PackageTags(ctx context.Context, packageID string) ([]model.PackageTag, error) {
	rows, err := s.query(ctx,
		`SELECT t.id, t.name, t.vocabulary_id, pt.state FROM tag t
		 JOIN package_tag pt ON pt.tag_id = t.id
		 WHERE pt.package_id = ? AND pt.state = 'active'
		 ORDER BY t.name`, packageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query package tags: %w", err)
	}
	return collect(rows, scanPackageTag)
}

// PackagesWithTag returns each active package carrying the tag once,
// ordered by name.
func (s *Session) PackagesWithTag(ctx context.Context, tagID string) ([]model.Package, error) {
	rows, err := s.query(ctx,
		`SELECT DISTINCT `+packageColumns+` FROM package p
		 JOIN package_tag pt ON pt.package_id = p.id
		 WHERE pt.tag_id = ? AND pt.state = 'active' AND p.state = 'active'
		 ORDER BY p.name`, tagID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tagged packages: %w", err)
	}
	return collect(rows, scanPackageValue)
}

// VocabularyTags returns the tags of a vocabulary ordered by name.
func (s *Session) VocabularyTags(ctx context.Context, vocabularyID string) ([]model.Tag, error) {
	rows, err := s.query(ctx,
		`SELECT id, name, vocabulary_id FROM tag WHERE vocabulary_id = ? ORDER BY name`, vocabularyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vocabulary tags: %w", err)
	}
	return collect(rows, func(sc scanner) (model.Tag, error) {
		t, err := scanTag(sc)
		if err != nil {
			return model.Tag{}, fmt.Errorf("failed to scan tag: %w", err)
		}
		return *t, nil
	})
}

func scanTag(sc scanner) (*model.Tag, error) {
	var t model.Tag
	var vocab sql.NullString
	if err := sc.Scan(&t.ID, &t.Name, &vocab); err != nil {
		return nil, err
	}
	t.VocabularyID = stringPtr(vocab)
	return &t, nil
}

func scanPackageTag(sc scanner) (model.PackageTag, error) {
	var t model.PackageTag
	var vocab sql.NullString
	if err := sc.Scan(&t.ID, &t.Name, &vocab, &t.State); err != nil {
		return model.PackageTag{}, fmt.Errorf("failed to scan tag: %w", err)
	}
	t.VocabularyID = stringPtr(vocab)
	return t, nil
}
