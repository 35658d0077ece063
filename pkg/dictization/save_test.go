package dictization

import (
	"encoding/json"
	"testing"

	"datacatalog/internal/testutil"
	"datacatalog/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceDictSave_UploadURLStripped(t *testing.T) {
	for _, url := range []string{"some_filename.csv", "http://some_filename.csv", "http://host/path/some_filename.csv"} {
		t.Run(url, func(t *testing.T) {
			f := testutil.New(t)
			p := f.Dataset()

			res, _, err := ResourceDictSave(f.Ctx, newContext(f, nil), Dict{
				"package_id": p.ID,
				"name":       "test_pkg_dictize",
				"url_type":   "upload",
				"url":        url,
			})
			require.NoError(t, err)
			assert.Equal(t, "some_filename.csv", res.URL)

			stored, err := f.Session.GetResource(f.Ctx, res.ID)
			require.NoError(t, err)
			assert.Equal(t, "some_filename.csv", stored.URL)
		})
	}
}

func TestResourceDictSave_LinkURLUntouched(t *testing.T) {
	f := testutil.New(t)
	p := f.Dataset()

	res, _, err := ResourceDictSave(f.Ctx, newContext(f, nil), Dict{
		"package_id": p.ID,
		"url":        "http://host/path/data.csv",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://host/path/data.csv", res.URL)
}

func TestResourceDictSave_ExtrasAndIgnoredKeys(t *testing.T) {
	f := testutil.New(t)
	p := f.Dataset()

	res, _, err := ResourceDictSave(f.Ctx, newContext(f, nil), Dict{
		"package_id":       p.ID,
		"url":              "http://example.com/a.csv",
		"size":             float64(1024),
		"licence_note":     "see notes",
		"tracking_summary": map[string]any{"total": 3},
		"extras":           map[string]any{"ignored": true},
		"attachments":      []any{"a", "b"},
	})
	require.NoError(t, err)

	require.NotNil(t, res.Size)
	assert.Equal(t, int64(1024), *res.Size)
	assert.Equal(t, map[string]any{"licence_note": "see notes"}, res.Extras)
	assert.Equal(t, model.StateActive, res.State)
}

func TestResourceDictSave_PositionsAppend(t *testing.T) {
	f := testutil.New(t)
	p := f.Dataset()
	dc := newContext(f, nil)

	first, _, err := ResourceDictSave(f.Ctx, dc, Dict{"package_id": p.ID, "url": "a"})
	require.NoError(t, err)
	second, _, err := ResourceDictSave(f.Ctx, dc, Dict{"package_id": p.ID, "url": "b"})
	require.NoError(t, err)

	assert.Equal(t, 0, first.Position)
	assert.Equal(t, 1, second.Position)
}

func TestResourceDictSave_UpdateReportsURLChange(t *testing.T) {
	f := testutil.New(t)
	p := f.Dataset()
	existing := f.Resource(p, func(r *model.Resource) {
		r.Extras = map[string]any{"old": "x"}
	})
	dc := newContext(f, nil)

	res, changed, err := ResourceDictSave(f.Ctx, dc, Dict{"id": existing.ID, "url": existing.URL, "name": "renamed"})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "renamed", *res.Name)
	assert.Empty(t, res.Extras, "extras not resubmitted are dropped")

	_, changed, err = ResourceDictSave(f.Ctx, dc, Dict{"id": existing.ID, "url": "http://elsewhere/b.csv"})
	require.NoError(t, err)
	assert.True(t, changed)

	_, changed, err = ResourceDictSave(f.Ctx, dc, Dict{"id": existing.ID, "url": "http://elsewhere/b.csv", "last_modified": "2024-03-01T10:00:00"})
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestResourceDictSave_NotCommitted(t *testing.T) {
	f := testutil.New(t)
	p := f.Dataset()
	f.Commit()

	res, _, err := ResourceDictSave(f.Ctx, newContext(f, nil), Dict{"package_id": p.ID, "url": "a"})
	require.NoError(t, err)
	require.NoError(t, f.Session.Rollback())

	_, err = f.Session.GetResource(f.Ctx, res.ID)
	assert.Error(t, err)
}

func TestResourceDictSave_Errors(t *testing.T) {
	f := testutil.New(t)
	p := f.Dataset()
	dc := newContext(f, nil)

	_, _, err := ResourceDictSave(f.Ctx, dc, Dict{"url": "a"})
	assert.ErrorIs(t, err, ErrMissingPackage)

	_, _, err = ResourceDictSave(f.Ctx, dc, Dict{"package_id": p.ID, "size": "big"})
	assert.ErrorIs(t, err, ErrInvalidField)

	_, _, err = ResourceDictSave(f.Ctx, dc, Dict{"package_id": p.ID, "last_modified": "yesterday"})
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestResourceDictSave_ExistingResourceOfOtherPackage(t *testing.T) {
	f := testutil.New(t)
	a := f.Dataset()
	b := f.Dataset()
	res := f.Resource(a)

	_, _, err := ResourceDictSave(f.Ctx, newContext(f, nil), Dict{
		"id":         res.ID,
		"package_id": b.ID,
		"url":        "http://elsewhere/x.csv",
	})
	assert.ErrorIs(t, err, ErrInvalidField)

	stored, err := f.Session.GetResource(f.Ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, stored.PackageID)
	assert.Equal(t, "http://link.to.some.data", stored.URL)
}

func TestResourceDictSave_RejectsBadIntegers(t *testing.T) {
	f := testutil.New(t)
	p := f.Dataset()
	dc := newContext(f, nil)

	for _, d := range []Dict{
		{"size": 1.5},
		{"size": -1},
		{"size": "-20"},
		{"position": float64(-2)},
		{"size": json.Number("2.5")},
	} {
		d["package_id"] = p.ID
		_, _, err := ResourceDictSave(f.Ctx, dc, d)
		assert.ErrorIs(t, err, ErrInvalidField, "%v", d)
	}

	res, _, err := ResourceDictSave(f.Ctx, dc, Dict{"package_id": p.ID, "size": float64(2048)})
	require.NoError(t, err)
	require.NotNil(t, res.Size)
	assert.Equal(t, int64(2048), *res.Size)
}
