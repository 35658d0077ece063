package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"datacatalog/pkg/model"

	"github.com/google/uuid"
)

const packageColumns = `p.id, p.name, p.title, p.type, p.notes, p.url, p.version,
	p.author, p.author_email, p.maintainer, p.maintainer_email, p.license_id,
	p.owner_org, p.private, p.state, p.creator_user_id, p.metadata_created, p.metadata_modified`

// CreatePackage inserts a package. When the package has an owner
// organization, an organization-capacity membership is recorded as well so
// the organization's package list and counts read from the same table as
// plain groups.
func (s *Session) CreatePackage(ctx context.Context, p *model.Package) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Type == "" {
		p.Type = "dataset"
	}
	if p.State == "" {
		p.State = model.StateActive
	}
	now := s.Now()
	if p.MetadataCreated.IsZero() {
		p.MetadataCreated = now
	}
	if p.MetadataModified.IsZero() {
		p.MetadataModified = now
	}

	_, err := s.exec(ctx,
		`INSERT INTO package (id, name, title, type, notes, url, version, author, author_email,
			maintainer, maintainer_email, license_id, owner_org, private, state, creator_user_id,
			metadata_created, metadata_modified)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Title, p.Type, nullString(p.Notes), nullString(p.URL), nullString(p.Version),
		nullString(p.Author), nullString(p.AuthorEmail), nullString(p.Maintainer), nullString(p.MaintainerEmail),
		nullString(p.LicenseID), nullString(p.OwnerOrg), boolInt(p.Private), p.State, nullString(p.CreatorUserID),
		formatTime(p.MetadataCreated), formatTime(p.MetadataModified),
	)
	if err != nil {
		return fmt.Errorf("failed to create package: %w", err)
	}

	if p.OwnerOrg != nil && *p.OwnerOrg != "" {
		if err := s.AddMember(ctx, &model.Member{
			Kind:     model.MemberPackage,
			GroupID:  *p.OwnerOrg,
			TargetID: p.ID,
			Capacity: model.CapacityOrganization,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) GetPackage(ctx context.Context, id string) (*model.Package, error) {
	return s.getPackage(ctx, `p.id = ?`, id)
}

func (s *Session) PackageByName(ctx context.Context, name string) (*model.Package, error) {
	return s.getPackage(ctx, `p.name = ?`, name)
}

// PackageByIDOrName resolves either form of package reference.
func (s *Session) PackageByIDOrName(ctx context.Context, ref string) (*model.Package, error) {
	p, err := s.GetPackage(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return s.PackageByName(ctx, ref)
	}
	return p, err
}

func (s *Session) getPackage(ctx context.Context, where string, arg any) (*model.Package, error) {
	row, err := s.queryRow(ctx, `SELECT `+packageColumns+` FROM package p WHERE `+where, arg)
	if err != nil {
		return nil, err
	}
	p, err := scanPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("package", fmt.Sprint(arg))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query package: %w", err)
	}
	return p, nil
}

// DeletePackage marks a package deleted. The row is kept so activity and
// relationships that reference it remain resolvable.
func (s *Session) DeletePackage(ctx context.Context, id string) error {
	res, err := s.exec(ctx,
		`UPDATE package SET state = 'deleted', metadata_modified = ? WHERE id = ?`,
		formatTime(s.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to delete package: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("package", id)
	}
	return nil
}

// TouchPackage bumps metadata_modified.
func (s *Session) TouchPackage(ctx context.Context, id string) error {
	_, err := s.exec(ctx, `UPDATE package SET metadata_modified = ? WHERE id = ?`, formatTime(s.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to touch package: %w", err)
	}
	return nil
}

func (s *Session) AddPackageExtra(ctx context.Context, packageID, key, value string) error {
	_, err := s.exec(ctx,
		`INSERT INTO package_extra (id, package_id, key, value, state) VALUES (?, ?, ?, ?, 'active')
		 ON CONFLICT (package_id, key) DO UPDATE SET value = excluded.value, state = 'active'`,
		uuid.New().String(), packageID, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to add package extra: %w", err)
	}
	return nil
}

// PackageExtras returns the active extras of a package ordered by key.
func (s *Session) PackageExtras(ctx context.Context, packageID string) ([]model.Extra, error) {
	rows, err := s.query(ctx,
		`SELECT id, package_id, key, value, state FROM package_extra
		 WHERE package_id = ? AND state = 'active' ORDER BY key`, packageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query package extras: %w", err)
	}
	return collect(rows, scanExtra)
}

// PackageGroups returns the active, non-organization groups a package
// belongs to, with the capacity of each membership.
func (s *Session) PackageGroups(ctx context.Context, packageID string) ([]model.PackageMember, error) {
	rows, err := s.query(ctx,
		`SELECT `+groupColumns+`, gp.capacity FROM "group" g
		 JOIN group_package gp ON gp.group_id = g.id
		 WHERE gp.package_id = ? AND gp.state = 'active'
		   AND g.state = 'active' AND g.is_organization = 0
		 ORDER BY g.name`, packageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query package groups: %w", err)
	}
	return collect(rows, func(sc scanner) (model.PackageMember, error) {
		var m model.PackageMember
		var isOrg int
		var created string
		g := &m.Group
		if err := sc.Scan(&g.ID, &g.Name, &g.Title, &g.Type, &g.Description, &g.ImageURL,
			&isOrg, &g.ApprovalStatus, &g.State, &created, &m.Capacity); err != nil {
			return model.PackageMember{}, fmt.Errorf("failed to scan package group: %w", err)
		}
		g.IsOrganization = isOrg == 1
		g.Created = parseTime(created)
		return m, nil
	})
}

func (s *Session) AddRelationship(ctx context.Context, r *model.PackageRelationship) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.State == "" {
		r.State = model.StateActive
	}
	_, err := s.exec(ctx,
		`INSERT INTO package_relationship (id, subject_package_id, object_package_id, type, comment, state)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.SubjectPackageID, r.ObjectPackageID, r.Type, r.Comment, r.State,
	)
	if err != nil {
		return fmt.Errorf("failed to add relationship: %w", err)
	}
	return nil
}

// PackageRelationships returns the active relationships in which the package
// is the subject and those in which it is the object.
func (s *Session) PackageRelationships(ctx context.Context, packageID string) (asSubject, asObject []model.PackageRelationship, err error) {
	load := func(column string) ([]model.PackageRelationship, error) {
		rows, err := s.query(ctx,
			`SELECT id, subject_package_id, object_package_id, type, comment, state
			 FROM package_relationship WHERE `+column+` = ? AND state = 'active' ORDER BY type, id`, packageID)
		if err != nil {
			return nil, fmt.Errorf("failed to query relationships: %w", err)
		}
		return collect(rows, func(sc scanner) (model.PackageRelationship, error) {
			var r model.PackageRelationship
			err := sc.Scan(&r.ID, &r.SubjectPackageID, &r.ObjectPackageID, &r.Type, &r.Comment, &r.State)
			return r, err
		})
	}

	if asSubject, err = load("subject_package_id"); err != nil {
		return nil, nil, err
	}
	if asObject, err = load("object_package_id"); err != nil {
		return nil, nil, err
	}
	return asSubject, asObject, nil
}

func scanPackage(sc scanner) (*model.Package, error) {
	var p model.Package
	var notes, url, version, author, authorEmail, maintainer, maintainerEmail sql.NullString
	var licenseID, ownerOrg, creator sql.NullString
	var private int
	var created, modified string

	if err := sc.Scan(&p.ID, &p.Name, &p.Title, &p.Type, &notes, &url, &version,
		&author, &authorEmail, &maintainer, &maintainerEmail, &licenseID,
		&ownerOrg, &private, &p.State, &creator, &created, &modified); err != nil {
		return nil, err
	}

	p.Notes = stringPtr(notes)
	p.URL = stringPtr(url)
	p.Version = stringPtr(version)
	p.Author = stringPtr(author)
	p.AuthorEmail = stringPtr(authorEmail)
	p.Maintainer = stringPtr(maintainer)
	p.MaintainerEmail = stringPtr(maintainerEmail)
	p.LicenseID = stringPtr(licenseID)
	p.OwnerOrg = stringPtr(ownerOrg)
	p.CreatorUserID = stringPtr(creator)
	p.Private = private == 1
	p.MetadataCreated = parseTime(created)
	p.MetadataModified = parseTime(modified)
	return &p, nil
}

func scanPackageValue(sc scanner) (model.Package, error) {
	p, err := scanPackage(sc)
	if err != nil {
		return model.Package{}, fmt.Errorf("failed to scan package: %w", err)
	}
	return *p, nil
}
