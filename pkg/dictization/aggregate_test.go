package dictization

import (
	"context"
	"testing"
	"time"

	"datacatalog/internal/testutil"
	"datacatalog/pkg/cache"
	"datacatalog/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetGroupDatasetCounts(t *testing.T) {
	f := testutil.New(t)
	a := f.Group("")
	b := f.Group("")
	empty := f.Group("")
	org := f.Organization("")

	f.InGroups(f.Dataset(), a, b)
	f.InGroups(f.Dataset(), a)
	f.Dataset(func(p *model.Package) { p.OwnerOrg = &org.ID })
	gone := f.Dataset()
	f.InGroups(gone, a)
	require.NoError(t, f.Session.DeletePackage(f.Ctx, gone.ID))

	counts, err := GetGroupDatasetCounts(f.Ctx, f.Session)
	require.NoError(t, err)

	assert.Equal(t, 2, counts[a.ID])
	assert.Equal(t, 1, counts[b.ID])
	assert.Equal(t, 1, counts[org.ID])
	_, ok := counts[empty.ID]
	assert.False(t, ok)
}

type countingCache struct {
	*cache.MemoryCache
	gets, sets int
}

func (c *countingCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.gets++
	return c.MemoryCache.Get(ctx, key)
}

func (c *countingCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	c.sets++
	return c.MemoryCache.Set(ctx, key, data, ttl)
}

func TestCountsCache(t *testing.T) {
	f := testutil.New(t)
	g := f.Group("")
	f.InGroups(f.Dataset(), g)

	backing := &countingCache{MemoryCache: cache.NewMemoryCache()}
	cc := NewCountsCache(backing, time.Minute)

	counts, err := cc.Get(f.Ctx, f.Session)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[g.ID])
	assert.Equal(t, 1, backing.sets)

	f.InGroups(f.Dataset(), g)
	counts, err = cc.Get(f.Ctx, f.Session)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[g.ID], "served from cache")
	assert.Equal(t, 1, backing.sets)

	require.NoError(t, cc.Invalidate(f.Ctx))
	counts, err = cc.Get(f.Ctx, f.Session)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[g.ID])
	assert.Equal(t, 2, backing.sets)
}

func TestCountsCache_UsedByGroupList(t *testing.T) {
	f := testutil.New(t)
	g := f.Group("")
	f.InGroups(f.Dataset(), g)

	dc := newContext(f, nil)
	dc.Counts = NewCountsCache(cache.NewMemoryCache(), time.Minute)

	out, err := GroupListDictize(f.Ctx, dc, []model.Group{*g}, DefaultGroupListOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, out[0]["package_count"])
	assert.Nil(t, dc.DatasetCounts, "list dictize does not modify the caller context")
}
