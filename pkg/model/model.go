// Package model defines the catalog's persisted entities.
//
// Values here are plain rows as read from the store. Related entities are
// never embedded; the dictization layer walks relationships through the
// store on demand.
package model

import (
	"time"
)

// Entity states
const (
	StateActive  = "active"
	StateDeleted = "deleted"
	StateDraft   = "draft"
)

// Group types
const (
	GroupTypeGroup        = "group"
	GroupTypeOrganization = "organization"
)

// Membership capacities
const (
	CapacityPublic       = "public"
	CapacityOrganization = "organization"
	CapacityParent       = "parent"
)

// URLTypeUpload marks a resource whose file was uploaded to the catalog.
const URLTypeUpload = "upload"

type User struct {
	ID       string    `json:"id" db:"id"`
	Name     string    `json:"name" db:"name"`
	Fullname *string   `json:"fullname" db:"fullname"`
	Email    *string   `json:"email" db:"email"`
	Sysadmin bool      `json:"sysadmin" db:"sysadmin"`
	State    string    `json:"state" db:"state"`
	Created  time.Time `json:"created" db:"created"`
}

type Package struct {
	ID               string    `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	Title            string    `json:"title" db:"title"`
	Type             string    `json:"type" db:"type"`
	Notes            *string   `json:"notes" db:"notes"`
	URL              *string   `json:"url" db:"url"`
	Version          *string   `json:"version" db:"version"`
	Author           *string   `json:"author" db:"author"`
	AuthorEmail      *string   `json:"author_email" db:"author_email"`
	Maintainer       *string   `json:"maintainer" db:"maintainer"`
	MaintainerEmail  *string   `json:"maintainer_email" db:"maintainer_email"`
	LicenseID        *string   `json:"license_id" db:"license_id"`
	OwnerOrg         *string   `json:"owner_org" db:"owner_org"`
	Private          bool      `json:"private" db:"private"`
	State            string    `json:"state" db:"state"`
	CreatorUserID    *string   `json:"creator_user_id" db:"creator_user_id"`
	MetadataCreated  time.Time `json:"metadata_created" db:"metadata_created"`
	MetadataModified time.Time `json:"metadata_modified" db:"metadata_modified"`
}

// Extra is a key/value pair owned by a package or a group.
type Extra struct {
	ID      string `json:"id" db:"id"`
	OwnerID string `json:"owner_id" db:"owner_id"`
	Key     string `json:"key" db:"key"`
	Value   string `json:"value" db:"value"`
	State   string `json:"state" db:"state"`
}

type Resource struct {
	ID               string         `json:"id" db:"id"`
	PackageID        string         `json:"package_id" db:"package_id"`
	Name             *string        `json:"name" db:"name"`
	Description      *string        `json:"description" db:"description"`
	Format           *string        `json:"format" db:"format"`
	URL              string         `json:"url" db:"url"`
	URLType          *string        `json:"url_type" db:"url_type"`
	Mimetype         *string        `json:"mimetype" db:"mimetype"`
	MimetypeInner    *string        `json:"mimetype_inner" db:"mimetype_inner"`
	Size             *int64         `json:"size" db:"size"`
	Hash             string         `json:"hash" db:"hash"`
	ResourceType     *string        `json:"resource_type" db:"resource_type"`
	CacheURL         *string        `json:"cache_url" db:"cache_url"`
	CacheLastUpdated *time.Time     `json:"cache_last_updated" db:"cache_last_updated"`
	LastModified     *time.Time     `json:"last_modified" db:"last_modified"`
	Position         int            `json:"position" db:"position"`
	State            string         `json:"state" db:"state"`
	Extras           map[string]any `json:"extras" db:"extras"`
	Created          time.Time      `json:"created" db:"created"`
	MetadataModified time.Time      `json:"metadata_modified" db:"metadata_modified"`
}

// IsUpload reports whether the resource points at an uploaded file.
func (r *Resource) IsUpload() bool {
	return r.URLType != nil && *r.URLType == URLTypeUpload
}

// Group is either a plain group or, when IsOrganization is set, an
// organization that owns packages.
type Group struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Title          string    `json:"title" db:"title"`
	Type           string    `json:"type" db:"type"`
	Description    string    `json:"description" db:"description"`
	ImageURL       string    `json:"image_url" db:"image_url"`
	IsOrganization bool      `json:"is_organization" db:"is_organization"`
	ApprovalStatus string    `json:"approval_status" db:"approval_status"`
	State          string    `json:"state" db:"state"`
	Created        time.Time `json:"created" db:"created"`
}

// DisplayName is the title, falling back to the name.
func (g *Group) DisplayName() string {
	if g.Title != "" {
		return g.Title
	}
	return g.Name
}

type Vocabulary struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

type Tag struct {
	ID           string  `json:"id" db:"id"`
	Name         string  `json:"name" db:"name"`
	VocabularyID *string `json:"vocabulary_id" db:"vocabulary_id"`
}

// PackageTag is a tag as attached to one package, carrying the state of the
// attachment rather than of the tag itself.
type PackageTag struct {
	Tag
	State string `json:"state"`
}

// PackageRelationship is a typed link between two packages.
type PackageRelationship struct {
	ID               string `json:"id" db:"id"`
	SubjectPackageID string `json:"subject_package_id" db:"subject_package_id"`
	ObjectPackageID  string `json:"object_package_id" db:"object_package_id"`
	Type             string `json:"type" db:"type"`
	Comment          string `json:"comment" db:"comment"`
	State            string `json:"state" db:"state"`
}

type Activity struct {
	ID           string         `json:"id" db:"id"`
	UserID       string         `json:"user_id" db:"user_id"`
	ObjectID     string         `json:"object_id" db:"object_id"`
	ActivityType string         `json:"activity_type" db:"activity_type"`
	Timestamp    time.Time      `json:"timestamp" db:"timestamp"`
	Data         map[string]any `json:"data" db:"data"`
}

// APIToken authenticates API calls on behalf of its owning user. The ID is
// the secret presented by clients.
type APIToken struct {
	ID           string         `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	UserID       string         `json:"user_id" db:"user_id"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	LastAccess   *time.Time     `json:"last_access" db:"last_access"`
	PluginExtras map[string]any `json:"plugin_extras" db:"plugin_extras"`
}
