package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"datacatalog/pkg/model"

	"github.com/google/uuid"
)

const groupColumns = `g.id, g.name, g.title, g.type, g.description, g.image_url,
	g.is_organization, g.approval_status, g.state, g.created`

func (s *Session) CreateGroup(ctx context.Context, g *model.Group) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.Type == "" {
		g.Type = model.GroupTypeGroup
		if g.IsOrganization {
			g.Type = model.GroupTypeOrganization
		}
	}
	if g.State == "" {
		g.State = model.StateActive
	}
	if g.ApprovalStatus == "" {
		g.ApprovalStatus = "approved"
	}
	if g.Created.IsZero() {
		g.Created = s.Now()
	}

	_, err := s.exec(ctx,
		`INSERT INTO "group" (id, name, title, type, description, image_url, is_organization, approval_status, state, created)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.Title, g.Type, g.Description, g.ImageURL, boolInt(g.IsOrganization),
		g.ApprovalStatus, g.State, formatTime(g.Created),
	)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

func (s *Session) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	return s.getGroup(ctx, `g.id = ?`, id)
}

// GroupByName finds a group or organization by name. Groups and
// organizations have separate namespaces; plain groups win a tie.
func (s *Session) GroupByName(ctx context.Context, name string) (*model.Group, error) {
	return s.getGroup(ctx, `g.name = ? ORDER BY g.is_organization LIMIT 1`, name)
}

// GroupByIDOrName resolves either form of group reference.
func (s *Session) GroupByIDOrName(ctx context.Context, ref string) (*model.Group, error) {
	g, err := s.GetGroup(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return s.GroupByName(ctx, ref)
	}
	return g, err
}

func (s *Session) getGroup(ctx context.Context, where string, arg any) (*model.Group, error) {
	row, err := s.queryRow(ctx, `SELECT `+groupColumns+` FROM "group" g WHERE `+where, arg)
	if err != nil {
		return nil, err
	}
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("group", fmt.Sprint(arg))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query group: %w", err)
	}
	return g, nil
}

// ListGroups returns active groups or organizations ordered by name.
func (s *Session) ListGroups(ctx context.Context, organizations bool) ([]model.Group, error) {
	rows, err := s.query(ctx,
		`SELECT `+groupColumns+` FROM "group" g
		 WHERE g.is_organization = ? AND g.state = 'active'
		 ORDER BY g.name`, boolInt(organizations))
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	return collect(rows, scanGroupValue)
}

// DeleteGroup removes a group and, through cascades, every membership row
// that references it. Packages keep their owner_org value.
func (s *Session) DeleteGroup(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM "group" WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete group: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetGroupState changes the lifecycle state without removing the row.
func (s *Session) SetGroupState(ctx context.Context, id, state string) error {
	res, err := s.exec(ctx, `UPDATE "group" SET state = ? WHERE id = ?`, state, id)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("group", id)
	}
	return nil
}

func (s *Session) AddGroupExtra(ctx context.Context, groupID, key, value string) error {
	_, err := s.exec(ctx,
		`INSERT INTO group_extra (id, group_id, key, value, state) VALUES (?, ?, ?, ?, 'active')
		 ON CONFLICT (group_id, key) DO UPDATE SET value = excluded.value, state = 'active'`,
		uuid.New().String(), groupID, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to add group extra: %w", err)
	}
	return nil
}

// GroupExtras returns the active extras of a group ordered by key.
func (s *Session) GroupExtras(ctx context.Context, groupID string) ([]model.Extra, error) {
	rows, err := s.query(ctx,
		`SELECT id, group_id, key, value, state FROM group_extra
		 WHERE group_id = ? AND state = 'active' ORDER BY key`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group extras: %w", err)
	}
	return collect(rows, scanExtra)
}

// AddMember persists a membership in the join table matching its kind.
func (s *Session) AddMember(ctx context.Context, m *model.Member) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.State == "" {
		m.State = model.StateActive
	}

	var query string
	switch m.Kind {
	case model.MemberPackage:
		if m.Capacity == "" {
			m.Capacity = model.CapacityPublic
		}
		query = `INSERT INTO group_package (id, group_id, package_id, capacity, state) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (group_id, package_id) DO UPDATE SET capacity = excluded.capacity, state = excluded.state`
	case model.MemberGroup:
		if m.Capacity == "" {
			m.Capacity = model.CapacityParent
		}
		query = `INSERT INTO group_group (id, parent_id, child_id, capacity, state) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (parent_id, child_id) DO UPDATE SET capacity = excluded.capacity, state = excluded.state`
	case model.MemberTag:
		if _, err := s.exec(ctx,
			`INSERT INTO group_tag (id, group_id, tag_id, state) VALUES (?, ?, ?, ?)
			 ON CONFLICT (group_id, tag_id) DO UPDATE SET state = excluded.state`,
			m.ID, m.GroupID, m.TargetID, m.State); err != nil {
			return fmt.Errorf("failed to add group tag: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported member kind %d", m.Kind)
	}

	if _, err := s.exec(ctx, query, m.ID, m.GroupID, m.TargetID, m.Capacity, m.State); err != nil {
		return fmt.Errorf("failed to add %s member: %w", m.Kind, err)
	}
	return nil
}

// ParentGroups returns the active groups that childID is a member of.
func (s *Session) ParentGroups(ctx context.Context, childID string) ([]model.Group, error) {
	rows, err := s.query(ctx,
		`SELECT `+groupColumns+` FROM "group" g
		 JOIN group_group gg ON gg.parent_id = g.id
		 WHERE gg.child_id = ? AND gg.state = 'active' AND g.state = 'active'
		 ORDER BY g.name`, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to query parent groups: %w", err)
	}
	return collect(rows, scanGroupValue)
}

// GroupTags returns the tags attached to a group ordered by name.
func (s *Session) GroupTags(ctx context.Context, groupID string) ([]model.PackageTag, error) {
	rows, err := s.query(ctx,
		`SELECT t.id, t.name, t.vocabulary_id, gt.state FROM tag t
		 JOIN group_tag gt ON gt.tag_id = t.id
		 WHERE gt.group_id = ? AND gt.state = 'active'
		 ORDER BY t.name`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group tags: %w", err)
	}
	return collect(rows, scanPackageTag)
}

// PackagesInGroup returns the active packages that are active members of a
// group, ordered by name. A limit of zero or less returns all of them.
func (s *Session) PackagesInGroup(ctx context.Context, groupID string, limit int) ([]model.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM package p
		JOIN group_package gp ON gp.package_id = p.id
		WHERE gp.group_id = ? AND gp.state = 'active' AND p.state = 'active'
		ORDER BY p.name`
	args := []any{groupID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query group packages: %w", err)
	}
	return collect(rows, scanPackageValue)
}

func (s *Session) CountPackagesInGroup(ctx context.Context, groupID string) (int, error) {
	row, err := s.queryRow(ctx,
		`SELECT COUNT(DISTINCT p.id) FROM package p
		 JOIN group_package gp ON gp.package_id = p.id
		 WHERE gp.group_id = ? AND gp.state = 'active' AND p.state = 'active'`, groupID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count group packages: %w", err)
	}
	return n, nil
}

// GroupDatasetCounts maps group id to its number of distinct active
// packages in one aggregate query. Groups without packages are absent.
func (s *Session) GroupDatasetCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.query(ctx,
		`SELECT gp.group_id, COUNT(DISTINCT p.id) FROM group_package gp
		 JOIN package p ON p.id = gp.package_id
		 WHERE gp.state = 'active' AND p.state = 'active'
		 GROUP BY gp.group_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan dataset count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func scanGroup(sc scanner) (*model.Group, error) {
	var g model.Group
	var isOrg int
	var created string
	if err := sc.Scan(&g.ID, &g.Name, &g.Title, &g.Type, &g.Description, &g.ImageURL,
		&isOrg, &g.ApprovalStatus, &g.State, &created); err != nil {
		return nil, err
	}
	g.IsOrganization = isOrg == 1
	g.Created = parseTime(created)
	return &g, nil
}

func scanGroupValue(sc scanner) (model.Group, error) {
	g, err := scanGroup(sc)
	if err != nil {
		return model.Group{}, fmt.Errorf("failed to scan group: %w", err)
	}
	return *g, nil
}

func scanExtra(sc scanner) (model.Extra, error) {
	var e model.Extra
	if err := sc.Scan(&e.ID, &e.OwnerID, &e.Key, &e.Value, &e.State); err != nil {
		return model.Extra{}, fmt.Errorf("failed to scan extra: %w", err)
	}
	return e, nil
}
