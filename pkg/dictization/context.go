// Package dictization projects catalog entities into nested maps for the
// API and back.
//
// Dictize functions never modify the entity they are given. Related rows
// are read through the Context's session on demand, so a single call may
// issue several queries. References to rows that no longer exist degrade
// to nil rather than failing the projection.
package dictization

import (
	"strings"
	"time"

	"datacatalog/pkg/config"
	"datacatalog/pkg/license"
	"datacatalog/pkg/store"
)

// Dict is a dictized entity.
type Dict = map[string]any

// Limits bounds the size of embedded collections. Zero means unbounded.
type Limits struct {
	Packages int
}

// Context carries what a dictize call needs beyond the entity itself.
type Context struct {
	Session  *store.Session
	Config   *config.Config
	Licenses *license.Registry

	// DatasetCounts maps group id to active package count. When nil,
	// counts are computed per group, or through Counts when that is set.
	DatasetCounts map[string]int
	Counts        *CountsCache

	Limits Limits
}

func NewContext(sess *store.Session, cfg *config.Config, licenses *license.Registry) *Context {
	if licenses == nil {
		licenses = license.Default()
	}
	return &Context{Session: sess, Config: cfg, Licenses: licenses}
}

// packageLimit is the smaller of the caller limit and ckan.search.rows_max.
func (dc *Context) packageLimit() int {
	limit := dc.Limits.Packages
	if rows := dc.Config.SearchRowsMax(); rows > 0 && (limit <= 0 || rows < limit) {
		limit = rows
	}
	return limit
}

func (dc *Context) siteURL() string {
	return dc.Config.SiteURL()
}

// imageDisplayURL resolves a group image reference. Uploaded images are
// stored as bare file names and served from the site's upload area.
func (dc *Context) imageDisplayURL(imageURL string) string {
	if imageURL == "" || strings.Contains(imageURL, "://") {
		return imageURL
	}
	site := dc.siteURL()
	if site == "" {
		return imageURL
	}
	return site + "/uploads/group/" + imageURL
}

const dictTimeLayout = "2006-01-02T15:04:05.000000"

func formatTime(t time.Time) string {
	return t.UTC().Format(dictTimeLayout)
}

func optTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
