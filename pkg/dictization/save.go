package dictization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"datacatalog/pkg/model"
	"datacatalog/pkg/store"
)

// ErrMissingPackage is returned when a new resource names no package.
var ErrMissingPackage = errors.New("resource has no package_id")

// ErrInvalidField wraps values that cannot be stored in a resource column.
var ErrInvalidField = errors.New("invalid resource field")

// skippedResourceKeys are accepted in inbound dicts but never stored.
var skippedResourceKeys = map[string]bool{
	"extras":             true,
	"tracking_summary":   true,
	"revision_timestamp": true,
	"id":                 true,
	"package_id":         true,
	"state":              true,
	"created":            true,
	"metadata_modified":  true,
}

type resourceSetter func(r *model.Resource, v any) error

var resourceSetters = map[string]resourceSetter{
	"name":               setString(func(r *model.Resource) **string { return &r.Name }),
	"description":        setString(func(r *model.Resource) **string { return &r.Description }),
	"format":             setString(func(r *model.Resource) **string { return &r.Format }),
	"url_type":           setString(func(r *model.Resource) **string { return &r.URLType }),
	"mimetype":           setString(func(r *model.Resource) **string { return &r.Mimetype }),
	"mimetype_inner":     setString(func(r *model.Resource) **string { return &r.MimetypeInner }),
	"resource_type":      setString(func(r *model.Resource) **string { return &r.ResourceType }),
	"cache_url":          setString(func(r *model.Resource) **string { return &r.CacheURL }),
	"cache_last_updated": setTime(func(r *model.Resource) **time.Time { return &r.CacheLastUpdated }),
	"last_modified":      setTime(func(r *model.Resource) **time.Time { return &r.LastModified }),
	"url": func(r *model.Resource, v any) error {
		r.URL = stringValue(v)
		return nil
	},
	"hash": func(r *model.Resource, v any) error {
		r.Hash = stringValue(v)
		return nil
	},
	"size": func(r *model.Resource, v any) error {
		n, ok, err := intValue(v)
		if err != nil {
			return fmt.Errorf("size: %w", err)
		}
		if !ok {
			r.Size = nil
			return nil
		}
		r.Size = &n
		return nil
	},
	"position": func(r *model.Resource, v any) error {
		n, ok, err := intValue(v)
		if err != nil {
			return fmt.Errorf("position: %w", err)
		}
		if ok {
			r.Position = int(n)
		}
		return nil
	},
}

// ResourceDictSave writes an inbound resource dict to the session without
// committing. An existing resource is loaded when the dict carries a known
// id. Keys that are not resource columns are kept as resource extras,
// replacing any previous extras; list values are ignored. Uploaded files
// keep only their file name as url. urlChanged reports whether an existing
// resource now points somewhere else.
func ResourceDictSave(ctx context.Context, dc *Context, data Dict) (res *model.Resource, urlChanged bool, err error) {
	id := stringValue(data["id"])
	isNew := true

	if id != "" {
		existing, err := dc.Session.GetResource(ctx, id)
		switch {
		case err == nil:
			if pkgID := stringValue(data["package_id"]); pkgID != "" && pkgID != existing.PackageID {
				return nil, false, fmt.Errorf("%w: resource %s belongs to another package", ErrInvalidField, id)
			}
			res, isNew = existing, false
		case errors.Is(err, store.ErrNotFound):
		default:
			return nil, false, err
		}
	}

	if res == nil {
		pkgID := stringValue(data["package_id"])
		if pkgID == "" {
			return nil, false, ErrMissingPackage
		}
		pos, err := dc.Session.NextResourcePosition(ctx, pkgID)
		if err != nil {
			return nil, false, err
		}
		res = &model.Resource{ID: id, PackageID: pkgID, Position: pos}
	}

	oldURL := res.URL
	extras := make(map[string]any)
	for key, value := range data {
		if isList(value) || skippedResourceKeys[key] {
			continue
		}
		set, ok := resourceSetters[key]
		if !ok {
			extras[key] = value
			continue
		}
		if key == "last_modified" && !isNew {
			urlChanged = true
		}
		if err := set(res, value); err != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrInvalidField, err)
		}
	}

	if res.IsUpload() {
		res.URL = res.URL[strings.LastIndex(res.URL, "/")+1:]
	}
	if !isNew && res.URL != oldURL {
		urlChanged = true
	}

	res.State = model.StateActive
	res.Extras = extras
	res.MetadataModified = dc.Session.Now()

	if err := dc.Session.SaveResource(ctx, res); err != nil {
		return nil, false, err
	}
	return res, urlChanged, nil
}

func isList(v any) bool {
	switch v.(type) {
	case []any, []string, []Dict:
		return true
	}
	return false
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func setString(field func(*model.Resource) **string) resourceSetter {
	return func(r *model.Resource, v any) error {
		if v == nil {
			*field(r) = nil
			return nil
		}
		s := stringValue(v)
		*field(r) = &s
		return nil
	}
}

var inboundTimeLayouts = []string{time.RFC3339Nano, dictTimeLayout, "2006-01-02T15:04:05", "2006-01-02"}

func setTime(field func(*model.Resource) **time.Time) resourceSetter {
	return func(r *model.Resource, v any) error {
		switch t := v.(type) {
		case nil:
			*field(r) = nil
			return nil
		case time.Time:
			*field(r) = &t
			return nil
		case string:
			if t == "" {
				*field(r) = nil
				return nil
			}
			for _, layout := range inboundTimeLayouts {
				if parsed, err := time.Parse(layout, t); err == nil {
					*field(r) = &parsed
					return nil
				}
			}
			return fmt.Errorf("unrecognised timestamp %q", t)
		}
		return fmt.Errorf("unsupported timestamp type %T", v)
	}
}

// intValue accepts the numeric forms JSON decoding and form posts produce.
func intValue(v any) (int64, bool, error) {
	switch n := v.(type) {
	case nil:
		return 0, false, nil
	case int:
		return checkNonNegative(int64(n))
	case int64:
		return checkNonNegative(n)
	case float64:
		if n != math.Trunc(n) {
			return 0, false, fmt.Errorf("non-integral number %v", n)
		}
		return checkNonNegative(int64(n))
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false, err
		}
		return checkNonNegative(i)
	case string:
		if strings.TrimSpace(n) == "" {
			return 0, false, nil
		}
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false, err
		}
		return checkNonNegative(i)
	}
	return 0, false, fmt.Errorf("unsupported number type %T", v)
}

// Sizes and positions are never negative.
func checkNonNegative(n int64) (int64, bool, error) {
	if n < 0 {
		return 0, false, fmt.Errorf("negative value %d", n)
	}
	return n, true, nil
}
