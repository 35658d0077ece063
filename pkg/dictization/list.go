package dictization

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"datacatalog/pkg/model"
)

// SortKey extracts the value a dictized list is ordered by.
type SortKey func(Dict) any

// ByName orders by the "name" field.
func ByName(d Dict) any { return d["name"] }

// ByPackageCount orders by the "package_count" field.
func ByPackageCount(d Dict) any { return d["package_count"] }

type ListOptions struct {
	// SortKey defaults to ByName.
	SortKey SortKey
	// Reverse sorts descending. Items with equal keys keep their input
	// order in both directions.
	Reverse bool
}

// ListDictize dictizes every item and sorts the results. Sorting happens
// after dictization so keys may read computed fields.
func ListDictize[T any](items []T, dictize func(*T) (Dict, error), opts ListOptions) ([]Dict, error) {
	out := make([]Dict, 0, len(items))
	for i := range items {
		d, err := dictize(&items[i])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	SortDicts(out, opts)
	return out, nil
}

// SortDicts stable-sorts dicts in place.
func SortDicts(dicts []Dict, opts ListOptions) {
	key := opts.SortKey
	if key == nil {
		key = ByName
	}

	type keyed struct {
		key  any
		dict Dict
	}
	ks := make([]keyed, len(dicts))
	for i, d := range dicts {
		ks[i] = keyed{key: key(d), dict: d}
	}

	slices.SortStableFunc(ks, func(a, b keyed) int {
		if opts.Reverse {
			return compareKeys(b.key, a.key)
		}
		return compareKeys(a.key, b.key)
	})
	for i := range ks {
		dicts[i] = ks[i].dict
	}
}

// compareKeys orders nil first, then numbers, strings, booleans and times
// by value. Values of different kinds compare by kind.
func compareKeys(a, b any) int {
	ra, rb := keyRank(a), keyRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case rankNumber:
		return cmp.Compare(toFloat(a), toFloat(b))
	case rankString:
		return cmp.Compare(a.(string), b.(string))
	case rankBool:
		return cmp.Compare(boolRank(a.(bool)), boolRank(b.(bool)))
	case rankTime:
		return a.(time.Time).Compare(b.(time.Time))
	case rankOther:
		return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
	return 0
}

const (
	rankNil = iota
	rankNumber
	rankString
	rankBool
	rankTime
	rankOther
)

func keyRank(v any) int {
	switch v.(type) {
	case nil:
		return rankNil
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		return rankNumber
	case string:
		return rankString
	case bool:
		return rankBool
	case time.Time:
		return rankTime
	default:
		return rankOther
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GroupListOptions combines per-group dictize options with list ordering.
type GroupListOptions struct {
	GroupOptions
	ListOptions
}

// DefaultGroupListOptions is the listing shape: counts without embedded
// packages, extras, tags or parents.
func DefaultGroupListOptions() GroupListOptions {
	return GroupListOptions{
		GroupOptions: GroupOptions{
			PackagesField:     PackagesDatasetCount,
			WithPackageCounts: true,
		},
	}
}

// GroupListDictize dictizes groups in one pass. When counts are wanted and
// the context has none, the aggregate is computed once for the whole list.
func GroupListDictize(ctx context.Context, dc *Context, groups []model.Group, opts GroupListOptions) ([]Dict, error) {
	if !opts.WithPackageCounts && opts.PackagesField == PackagesDatasetCount {
		opts.PackagesField = PackagesOmit
	}

	lc := *dc
	if lc.DatasetCounts == nil && (opts.WithPackageCounts || opts.PackagesField != PackagesOmit) {
		var (
			counts map[string]int
			err    error
		)
		if lc.Counts != nil {
			counts, err = lc.Counts.Get(ctx, lc.Session)
		} else {
			counts, err = GetGroupDatasetCounts(ctx, lc.Session)
		}
		if err != nil {
			return nil, err
		}
		lc.DatasetCounts = counts
	}

	return ListDictize(groups, func(g *model.Group) (Dict, error) {
		return GroupDictize(ctx, &lc, g, opts.GroupOptions)
	}, opts.ListOptions)
}

func PackageListDictize(ctx context.Context, dc *Context, pkgs []model.Package, opts ListOptions) ([]Dict, error) {
	return ListDictize(pkgs, func(p *model.Package) (Dict, error) {
		return PackageDictize(ctx, dc, p)
	}, opts)
}

func TagListDictize(ctx context.Context, dc *Context, tags []model.Tag, includeDatasets bool, opts ListOptions) ([]Dict, error) {
	return ListDictize(tags, func(t *model.Tag) (Dict, error) {
		return TagDictize(ctx, dc, t, includeDatasets)
	}, opts)
}

// ActivityListDictize keeps the input order unless a SortKey is given,
// since activities carry no name.
func ActivityListDictize(activities []model.Activity, includeData bool, opts ListOptions) ([]Dict, error) {
	if opts.SortKey == nil {
		opts.SortKey = func(Dict) any { return nil }
	}
	return ListDictize(activities, func(a *model.Activity) (Dict, error) {
		return ActivityDictize(a, includeData), nil
	}, opts)
}
