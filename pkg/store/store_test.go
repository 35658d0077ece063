package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"datacatalog/db"
	"datacatalog/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) (*Session, *db.Service) {
	t.Helper()
	cfg := db.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "catalog.db")
	svc, err := db.New(cfg)
	require.NoError(t, err)

	sess := NewSession(svc.DB)
	t.Cleanup(func() {
		_ = sess.Close()
		_ = svc.Close()
	})
	return sess, svc
}

func strPtr(s string) *string { return &s }

func TestSession_CommitAndRollback(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, sess.CreateUser(ctx, &model.User{Name: "kept"}))
	require.NoError(t, sess.Commit())
	assert.False(t, sess.Pending())

	require.NoError(t, sess.CreateUser(ctx, &model.User{Name: "dropped"}))
	require.NoError(t, sess.Rollback())

	_, err := sess.UserByName(ctx, "kept")
	require.NoError(t, err)
	_, err = sess.UserByName(ctx, "dropped")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetPackage_NotFound(t *testing.T) {
	sess, _ := newTestSession(t)

	_, err := sess.GetPackage(context.Background(), "nope")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "package", nf.Kind)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreatePackage_OwnerOrgMembership(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	org := &model.Group{Name: "org", IsOrganization: true}
	require.NoError(t, sess.CreateGroup(ctx, org))
	assert.Equal(t, model.GroupTypeOrganization, org.Type)

	pkg := &model.Package{Name: "owned", OwnerOrg: &org.ID}
	require.NoError(t, sess.CreatePackage(ctx, pkg))

	pkgs, err := sess.PackagesInGroup(ctx, org.ID, 0)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "owned", pkgs[0].Name)

	// organizations are not listed as package groups
	groups, err := sess.PackageGroups(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestGroupDatasetCounts(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	a := &model.Group{Name: "a"}
	b := &model.Group{Name: "b"}
	empty := &model.Group{Name: "empty"}
	for _, g := range []*model.Group{a, b, empty} {
		require.NoError(t, sess.CreateGroup(ctx, g))
	}

	addPackage := func(name string, groups ...*model.Group) *model.Package {
		p := &model.Package{Name: name}
		require.NoError(t, sess.CreatePackage(ctx, p))
		for _, g := range groups {
			require.NoError(t, sess.AddMember(ctx, &model.Member{Kind: model.MemberPackage, GroupID: g.ID, TargetID: p.ID}))
		}
		return p
	}
	addPackage("p1", a, b)
	addPackage("p2", b)
	gone := addPackage("p3", a, b)
	require.NoError(t, sess.DeletePackage(ctx, gone.ID))

	counts, err := sess.GroupDatasetCounts(ctx)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{a.ID: 1, b.ID: 2}, counts)
	_, ok := counts[empty.ID]
	assert.False(t, ok)

	n, err := sess.CountPackagesInGroup(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPackagesInGroup_Limit(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	g := &model.Group{Name: "g"}
	require.NoError(t, sess.CreateGroup(ctx, g))
	for i := 0; i < 5; i++ {
		p := &model.Package{Name: fmt.Sprintf("pkg-%d", i)}
		require.NoError(t, sess.CreatePackage(ctx, p))
		require.NoError(t, sess.AddMember(ctx, &model.Member{Kind: model.MemberPackage, GroupID: g.ID, TargetID: p.ID}))
	}

	limited, err := sess.PackagesInGroup(ctx, g.ID, 3)
	require.NoError(t, err)
	assert.Len(t, limited, 3)
	assert.Equal(t, "pkg-0", limited[0].Name)

	all, err := sess.PackagesInGroup(ctx, g.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestParentGroupsAndTags(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	parent := &model.Group{Name: "parent"}
	child := &model.Group{Name: "child"}
	require.NoError(t, sess.CreateGroup(ctx, parent))
	require.NoError(t, sess.CreateGroup(ctx, child))
	require.NoError(t, sess.AddMember(ctx, &model.Member{Kind: model.MemberGroup, GroupID: parent.ID, TargetID: child.ID}))

	tag, err := sess.CreateTag(ctx, "t1", nil)
	require.NoError(t, err)
	require.NoError(t, sess.AddMember(ctx, &model.Member{Kind: model.MemberTag, GroupID: child.ID, TargetID: tag.ID}))

	parents, err := sess.ParentGroups(ctx, child.ID)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, "parent", parents[0].Name)

	none, err := sess.ParentGroups(ctx, parent.ID)
	require.NoError(t, err)
	assert.Empty(t, none)

	tags, err := sess.GroupTags(ctx, child.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "t1", tags[0].Name)
}

func TestDeleteGroup_CascadesMembership(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	org := &model.Group{Name: "org", IsOrganization: true}
	require.NoError(t, sess.CreateGroup(ctx, org))
	pkg := &model.Package{Name: "orphan", OwnerOrg: &org.ID}
	require.NoError(t, sess.CreatePackage(ctx, pkg))

	deleted, err := sess.DeleteGroup(ctx, org.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	counts, err := sess.GroupDatasetCounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)

	reloaded, err := sess.GetPackage(ctx, pkg.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.OwnerOrg)
	assert.Equal(t, org.ID, *reloaded.OwnerOrg)
}

func TestTags_VocabularyScoping(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	vocab := &model.Vocabulary{Name: "genre"}
	require.NoError(t, sess.CreateVocabulary(ctx, vocab))

	p := &model.Package{Name: "tagged"}
	require.NoError(t, sess.CreatePackage(ctx, p))

	free, err := sess.TagPackage(ctx, p.ID, "jazz", nil)
	require.NoError(t, err)
	scoped, err := sess.TagPackage(ctx, p.ID, "jazz", &vocab.ID)
	require.NoError(t, err)
	assert.NotEqual(t, free.ID, scoped.ID)

	again, err := sess.TagPackage(ctx, p.ID, "jazz", nil)
	require.NoError(t, err)
	assert.Equal(t, free.ID, again.ID)

	tags, err := sess.PackageTags(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, tags, 2)

	vocabTags, err := sess.VocabularyTags(ctx, vocab.ID)
	require.NoError(t, err)
	require.Len(t, vocabTags, 1)
	assert.Equal(t, scoped.ID, vocabTags[0].ID)

	pkgs, err := sess.PackagesWithTag(ctx, free.ID)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
}

func TestTags_FreeTagNamesUnique(t *testing.T) {
	_, svc := newTestSession(t)

	_, err := svc.DB.Exec(`INSERT INTO tag (id, name, vocabulary_id) VALUES ('t1', 'jazz', NULL)`)
	require.NoError(t, err)
	_, err = svc.DB.Exec(`INSERT INTO tag (id, name, vocabulary_id) VALUES ('t2', 'jazz', NULL)`)
	assert.Error(t, err)
}

func TestSession_Clock(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()
	fixed := time.Date(2021, 6, 1, 9, 30, 0, 0, time.FixedZone("CEST", 2*60*60))
	sess.SetClock(func() time.Time { return fixed })

	assert.Equal(t, time.UTC, sess.Now().Location())
	assert.True(t, fixed.Equal(sess.Now()))

	u := &model.User{Name: "clocked"}
	require.NoError(t, sess.CreateUser(ctx, u))
	got, err := sess.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, fixed.Equal(got.Created))
}

func TestResources_OrderedByPosition(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	p := &model.Package{Name: "with-resources"}
	require.NoError(t, sess.CreatePackage(ctx, p))

	for _, pos := range []int{2, 0, 1} {
		r := &model.Resource{PackageID: p.ID, URL: fmt.Sprintf("http://x/%d", pos), Position: pos,
			Extras: map[string]any{"lang": "en"}}
		require.NoError(t, sess.SaveResource(ctx, r))
	}

	resources, err := sess.PackageResources(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, resources, 3)
	for i, r := range resources {
		assert.Equal(t, i, r.Position)
		assert.Equal(t, "en", r.Extras["lang"])
	}

	next, err := sess.NextResourcePosition(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, next)
}

func TestAPIToken_CascadeOnUserDelete(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	u := &model.User{Name: "owner"}
	require.NoError(t, sess.CreateUser(ctx, u))
	tok := &model.APIToken{ID: "secret", Name: "cli", UserID: u.ID}
	require.NoError(t, sess.CreateAPIToken(ctx, tok))
	require.NoError(t, sess.Commit())

	deleted, err := sess.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, deleted)
	require.NoError(t, sess.Commit())

	_, err = sess.GetAPIToken(ctx, "secret")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAPIToken_LastAccessAndExtras(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	u := &model.User{Name: "owner"}
	require.NoError(t, sess.CreateUser(ctx, u))
	require.NoError(t, sess.CreateAPIToken(ctx, &model.APIToken{ID: "tok", Name: "n", UserID: u.ID}))

	fresh, err := sess.GetAPIToken(ctx, "tok")
	require.NoError(t, err)
	assert.Nil(t, fresh.LastAccess)
	assert.Nil(t, fresh.PluginExtras)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, sess.SetAPITokenLastAccess(ctx, "tok", at))
	require.NoError(t, sess.ReplaceAPITokenExtras(ctx, "tok", map[string]any{"scope": "read"}))

	got, err := sess.GetAPIToken(ctx, "tok")
	require.NoError(t, err)
	require.NotNil(t, got.LastAccess)
	assert.True(t, at.Equal(*got.LastAccess))
	assert.Equal(t, "read", got.PluginExtras["scope"])
}

func TestActivities(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, sess.CreateActivity(ctx, &model.Activity{
			UserID: "u", ObjectID: "obj", ActivityType: "changed package",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Data:      map[string]any{"n": float64(i)},
		}))
	}

	acts, err := sess.ObjectActivities(ctx, "obj", 2)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, float64(2), acts[0].Data["n"])

	one, err := sess.GetActivity(ctx, acts[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "changed package", one.ActivityType)
}

func TestRelationships(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	a := &model.Package{Name: "a", Title: "A", Notes: strPtr("n")}
	b := &model.Package{Name: "b"}
	require.NoError(t, sess.CreatePackage(ctx, a))
	require.NoError(t, sess.CreatePackage(ctx, b))
	require.NoError(t, sess.AddRelationship(ctx, &model.PackageRelationship{
		SubjectPackageID: a.ID, ObjectPackageID: b.ID, Type: "depends_on",
	}))

	subj, obj, err := sess.PackageRelationships(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, subj, 1)
	assert.Empty(t, obj)

	subj, obj, err = sess.PackageRelationships(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, subj)
	require.Len(t, obj, 1)
	assert.Equal(t, "depends_on", obj[0].Type)
}
