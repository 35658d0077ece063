package dictization

import (
	"strings"

	"datacatalog/pkg/model"
)

// ResourceDictize flattens resource extras into the dict next to the
// table fields. Table fields win on a key clash.
func ResourceDictize(dc *Context, r *model.Resource) Dict {
	d := make(Dict, len(r.Extras)+20)
	for k, v := range r.Extras {
		d[k] = v
	}

	var size any
	if r.Size != nil {
		size = *r.Size
	}

	for k, v := range map[string]any{
		"id":                 r.ID,
		"package_id":         r.PackageID,
		"name":               optString(r.Name),
		"description":        optString(r.Description),
		"format":             optString(r.Format),
		"url":                dc.resourceURL(r),
		"url_type":           optString(r.URLType),
		"mimetype":           optString(r.Mimetype),
		"mimetype_inner":     optString(r.MimetypeInner),
		"size":               size,
		"hash":               r.Hash,
		"resource_type":      optString(r.ResourceType),
		"cache_url":          optString(r.CacheURL),
		"cache_last_updated": optTime(r.CacheLastUpdated),
		"last_modified":      optTime(r.LastModified),
		"position":           r.Position,
		"state":              r.State,
		"created":            formatTime(r.Created),
		"metadata_modified":  formatTime(r.MetadataModified),
	} {
		d[k] = v
	}
	return d
}

// resourceURL expands an uploaded file name into its download URL when the
// site URL is known.
func (dc *Context) resourceURL(r *model.Resource) string {
	if !r.IsUpload() || r.URL == "" || strings.Contains(r.URL, "://") {
		return r.URL
	}
	site := dc.siteURL()
	if site == "" {
		return r.URL
	}
	return site + "/dataset/" + r.PackageID + "/resource/" + r.ID + "/download/" + r.URL
}
