// Package testutil builds throwaway catalogs for tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"datacatalog/db"
	"datacatalog/pkg/model"
	"datacatalog/pkg/store"

	"github.com/stretchr/testify/require"
)

// Fixture is a fresh SQLite catalog plus factories that create entities
// through the store and fail the test on error. Created rows are left
// pending in Session; call Commit when another session must see them.
type Fixture struct {
	T       testing.TB
	Ctx     context.Context
	DB      *db.Service
	Session *store.Session

	seq int
}

func New(t testing.TB) *Fixture {
	t.Helper()

	cfg := db.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "catalog.db")
	svc, err := db.New(cfg)
	require.NoError(t, err)

	sess := store.NewSession(svc.DB)
	t.Cleanup(func() {
		_ = sess.Close()
		_ = svc.Close()
	})

	return &Fixture{T: t, Ctx: context.Background(), DB: svc, Session: sess}
}

// NewSession opens a second session on the same database. The pool has a
// single connection, so the fixture session must not hold a transaction
// while the new one is in use.
func (f *Fixture) NewSession() *store.Session {
	sess := store.NewSession(f.DB.DB)
	f.T.Cleanup(func() { _ = sess.Close() })
	return sess
}

func (f *Fixture) Commit() {
	f.T.Helper()
	require.NoError(f.T, f.Session.Commit())
}

func (f *Fixture) next(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%02d", prefix, f.seq)
}

func Str(s string) *string { return &s }

func (f *Fixture) User(mods ...func(*model.User)) *model.User {
	f.T.Helper()
	u := &model.User{Name: f.next("test_user"), Fullname: Str("Mr. Test User")}
	for _, m := range mods {
		m(u)
	}
	require.NoError(f.T, f.Session.CreateUser(f.Ctx, u))
	return u
}

// Group creates a plain group. An empty name is generated.
func (f *Fixture) Group(name string, mods ...func(*model.Group)) *model.Group {
	f.T.Helper()
	if name == "" {
		name = f.next("test_group")
	}
	g := &model.Group{
		Name:        name,
		Title:       "Test Group",
		Description: "A test description for this test group.",
	}
	for _, m := range mods {
		m(g)
	}
	require.NoError(f.T, f.Session.CreateGroup(f.Ctx, g))
	return g
}

// Organization creates an organization. An empty name is generated.
func (f *Fixture) Organization(name string, mods ...func(*model.Group)) *model.Group {
	f.T.Helper()
	if name == "" {
		name = f.next("test_org")
	}
	g := &model.Group{
		Name:           name,
		Title:          "Test Organization",
		Description:    "Just another test organization.",
		ImageURL:       "http://placekitten.com/g/200/100",
		IsOrganization: true,
	}
	for _, m := range mods {
		m(g)
	}
	require.NoError(f.T, f.Session.CreateGroup(f.Ctx, g))
	return g
}

// Dataset creates a package, optionally adding it to groups.
func (f *Fixture) Dataset(mods ...func(*model.Package)) *model.Package {
	f.T.Helper()
	p := &model.Package{Name: f.next("test_dataset"), Title: "Test Dataset"}
	for _, m := range mods {
		m(p)
	}
	require.NoError(f.T, f.Session.CreatePackage(f.Ctx, p))
	return p
}

// InGroups adds the package to each group with public capacity.
func (f *Fixture) InGroups(p *model.Package, groups ...*model.Group) {
	f.T.Helper()
	for _, g := range groups {
		require.NoError(f.T, f.Session.AddMember(f.Ctx, &model.Member{
			Kind:     model.MemberPackage,
			GroupID:  g.ID,
			TargetID: p.ID,
		}))
	}
}

// ChildOf makes child a member of parent.
func (f *Fixture) ChildOf(child, parent *model.Group) {
	f.T.Helper()
	require.NoError(f.T, f.Session.AddMember(f.Ctx, &model.Member{
		Kind:     model.MemberGroup,
		GroupID:  parent.ID,
		TargetID: child.ID,
	}))
}

func (f *Fixture) Tag(p *model.Package, name string, vocabularyID *string) *model.Tag {
	f.T.Helper()
	t, err := f.Session.TagPackage(f.Ctx, p.ID, name, vocabularyID)
	require.NoError(f.T, err)
	return t
}

func (f *Fixture) Vocabulary(name string) *model.Vocabulary {
	f.T.Helper()
	v := &model.Vocabulary{Name: name}
	require.NoError(f.T, f.Session.CreateVocabulary(f.Ctx, v))
	return v
}

func (f *Fixture) Resource(p *model.Package, mods ...func(*model.Resource)) *model.Resource {
	f.T.Helper()
	pos, err := f.Session.NextResourcePosition(f.Ctx, p.ID)
	require.NoError(f.T, err)

	r := &model.Resource{
		PackageID:   p.ID,
		Name:        Str(f.next("test_resource")),
		Description: Str("Just another test resource."),
		Format:      Str("res_format"),
		URL:         "http://link.to.some.data",
		Position:    pos,
	}
	for _, m := range mods {
		m(r)
	}
	require.NoError(f.T, f.Session.SaveResource(f.Ctx, r))
	return r
}

func (f *Fixture) Activity(a *model.Activity) *model.Activity {
	f.T.Helper()
	require.NoError(f.T, f.Session.CreateActivity(f.Ctx, a))
	return a
}
