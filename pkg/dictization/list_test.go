package dictization

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func names(ds []Dict) []any {
	out := make([]any, len(ds))
	for i, d := range ds {
		out[i] = d["name"]
	}
	return out
}

func TestSortDicts_ByNameStable(t *testing.T) {
	ds := []Dict{
		{"name": "b", "n": 1},
		{"name": "a", "n": 2},
		{"name": "b", "n": 3},
		{"name": "B", "n": 4},
	}

	SortDicts(ds, ListOptions{})

	assert.Equal(t, []any{"B", "a", "b", "b"}, names(ds))
	assert.Equal(t, 1, ds[2]["n"])
	assert.Equal(t, 3, ds[3]["n"])
}

func TestSortDicts_Reverse(t *testing.T) {
	ds := []Dict{{"name": "a"}, {"name": "c"}, {"name": "b"}}

	SortDicts(ds, ListOptions{Reverse: true})

	assert.Equal(t, []any{"c", "b", "a"}, names(ds))
}

func TestSortDicts_ReverseKeepsTieOrder(t *testing.T) {
	ds := []Dict{
		{"name": "x", "package_count": 1},
		{"name": "y", "package_count": 2},
		{"name": "z", "package_count": 1},
	}

	SortDicts(ds, ListOptions{SortKey: ByPackageCount, Reverse: true})

	assert.Equal(t, []any{"y", "x", "z"}, names(ds))
}

func TestSortDicts_MixedKeys(t *testing.T) {
	ds := []Dict{
		{"name": "str", "k": "a"},
		{"name": "float", "k": 1.5},
		{"name": "nil"},
		{"name": "int", "k": 1},
	}

	SortDicts(ds, ListOptions{SortKey: func(d Dict) any { return d["k"] }})

	assert.Equal(t, []any{"nil", "int", "float", "str"}, names(ds))
}

func TestListDictize_PropagatesErrors(t *testing.T) {
	_, err := ListDictize([]int{1, 2}, func(n *int) (Dict, error) {
		if *n == 2 {
			return nil, assert.AnError
		}
		return Dict{"name": *n}, nil
	}, ListOptions{})

	assert.ErrorIs(t, err, assert.AnError)
}
