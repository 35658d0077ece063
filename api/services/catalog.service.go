package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"datacatalog/pkg/apitoken"
	"datacatalog/pkg/config"
	"datacatalog/pkg/dictization"
	"datacatalog/pkg/license"
	"datacatalog/pkg/model"
	"datacatalog/pkg/shared"
	"datacatalog/pkg/store"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// ErrForbidden is returned when a user acts on something they do not own.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidSort is returned for sort parameters ParseSort cannot read.
var ErrInvalidSort = errors.New("invalid sort")

// Publisher delivers activity events to the activity stream.
type Publisher interface {
	PublishActivity(ctx context.Context, ev *shared.Event) error
}

// CatalogService runs each call in its own session and closes it before
// returning.
type CatalogService struct {
	db        *sql.DB
	cfg       *config.Config
	licenses  *license.Registry
	counts    *dictization.CountsCache
	publisher Publisher
}

func NewCatalogService(db *sql.DB, cfg *config.Config, licenses *license.Registry, counts *dictization.CountsCache, publisher Publisher) *CatalogService {
	if counts == nil {
		counts = dictization.NewCountsCache(nil, 0)
	}
	return &CatalogService{
		db:        db,
		cfg:       cfg,
		licenses:  licenses,
		counts:    counts,
		publisher: publisher,
	}
}

func (s *CatalogService) open() (*store.Session, *dictization.Context) {
	sess := store.NewSession(s.db)
	dc := dictization.NewContext(sess, s.cfg, s.licenses)
	dc.Counts = s.counts
	return sess, dc
}

// GroupListRequest mirrors the group_list action parameters.
type GroupListRequest struct {
	Organizations bool
	Sort          string
	AllFields     bool
}

// ParseSort reads "field [asc|desc]". Only name and package_count sort.
func ParseSort(sort string) (dictization.ListOptions, error) {
	fields := strings.Fields(strings.ToLower(sort))
	if len(fields) == 0 {
		return dictization.ListOptions{SortKey: dictization.ByName}, nil
	}

	var opts dictization.ListOptions
	switch fields[0] {
	case "name":
		opts.SortKey = dictization.ByName
	case "package_count":
		opts.SortKey = dictization.ByPackageCount
	default:
		return opts, fmt.Errorf("%w: cannot sort by field %q", ErrInvalidSort, fields[0])
	}

	if len(fields) > 1 {
		switch fields[1] {
		case "asc":
		case "desc":
			opts.Reverse = true
		default:
			return opts, fmt.Errorf("%w: direction %q", ErrInvalidSort, fields[1])
		}
	}
	return opts, nil
}

// GroupList returns group dicts, or only their names unless AllFields.
func (s *CatalogService) GroupList(ctx context.Context, req GroupListRequest) (any, error) {
	listOpts, err := ParseSort(req.Sort)
	if err != nil {
		return nil, err
	}

	sess, dc := s.open()
	defer sess.Close()

	groups, err := sess.ListGroups(ctx, req.Organizations)
	if err != nil {
		return nil, err
	}

	opts := dictization.DefaultGroupListOptions()
	opts.ListOptions = listOpts
	dicts, err := dictization.GroupListDictize(ctx, dc, groups, opts)
	if err != nil {
		return nil, err
	}

	if req.AllFields {
		return dicts, nil
	}
	names := make([]string, 0, len(dicts))
	for _, d := range dicts {
		names = append(names, d["name"].(string))
	}
	return names, nil
}

// GroupShow dictizes a group or organization by id or name. A group of the
// other kind is reported as not found.
func (s *CatalogService) GroupShow(ctx context.Context, ref string, organization bool) (dictization.Dict, error) {
	sess, dc := s.open()
	defer sess.Close()
	// Count live so package_count agrees with the packages listed.
	dc.Counts = nil

	g, err := sess.GroupByIDOrName(ctx, ref)
	if err != nil {
		return nil, err
	}
	if g.IsOrganization != organization || g.State == model.StateDeleted {
		return nil, &store.NotFoundError{Kind: "group", Key: ref}
	}
	return dictization.GroupDictize(ctx, dc, g, dictization.DefaultGroupOptions())
}

func (s *CatalogService) PackageShow(ctx context.Context, ref string) (dictization.Dict, error) {
	sess, dc := s.open()
	defer sess.Close()

	p, err := sess.PackageByIDOrName(ctx, ref)
	if err != nil {
		return nil, err
	}
	return dictization.PackageDictize(ctx, dc, p)
}

// TagShow finds a tag by id, then by name within vocabulary (free tags when
// vocabulary is empty).
func (s *CatalogService) TagShow(ctx context.Context, ref, vocabulary string, includeDatasets bool) (dictization.Dict, error) {
	sess, dc := s.open()
	defer sess.Close()

	t, err := sess.GetTag(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		var vocabID *string
		if vocabulary != "" {
			v, err := s.vocabulary(ctx, sess, vocabulary)
			if err != nil {
				return nil, err
			}
			vocabID = &v.ID
		}
		t, err = sess.TagByName(ctx, ref, vocabID)
	}
	if err != nil {
		return nil, err
	}
	return dictization.TagDictize(ctx, dc, t, includeDatasets)
}

func (s *CatalogService) VocabularyShow(ctx context.Context, ref string) (dictization.Dict, error) {
	sess, dc := s.open()
	defer sess.Close()

	v, err := s.vocabulary(ctx, sess, ref)
	if err != nil {
		return nil, err
	}
	return dictization.VocabularyDictize(ctx, dc, v, false)
}

func (s *CatalogService) vocabulary(ctx context.Context, sess *store.Session, ref string) (*model.Vocabulary, error) {
	v, err := sess.GetVocabulary(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return sess.VocabularyByName(ctx, ref)
	}
	return v, err
}

func (s *CatalogService) ActivityShow(ctx context.Context, id string, includeData bool) (dictization.Dict, error) {
	sess, _ := s.open()
	defer sess.Close()

	a, err := sess.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	return dictization.ActivityDictize(a, includeData), nil
}

// PackageActivityList returns the newest activities about a package.
func (s *CatalogService) PackageActivityList(ctx context.Context, ref string, limit int) ([]dictization.Dict, error) {
	sess, _ := s.open()
	defer sess.Close()

	p, err := sess.PackageByIDOrName(ctx, ref)
	if err != nil {
		return nil, err
	}
	acts, err := sess.ObjectActivities(ctx, p.ID, limit)
	if err != nil {
		return nil, err
	}
	return dictization.ActivityListDictize(acts, false, dictization.ListOptions{})
}

// ResourceCreate saves a resource dict, commits, and announces the change
// to the parent package.
func (s *CatalogService) ResourceCreate(ctx context.Context, userID string, data dictization.Dict) (dictization.Dict, error) {
	sess, dc := s.open()
	defer sess.Close()

	if id, _ := data["id"].(string); id != "" {
		_, err := sess.GetResource(ctx, id)
		if err == nil {
			return nil, fmt.Errorf("%w: resource %s already exists", dictization.ErrInvalidField, id)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	res, _, err := dictization.ResourceDictSave(ctx, dc, data)
	if err != nil {
		_ = sess.Rollback()
		return nil, err
	}
	if err := sess.TouchPackage(ctx, res.PackageID); err != nil {
		_ = sess.Rollback()
		return nil, err
	}
	if err := sess.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit resource: %w", err)
	}

	pkg, err := sess.GetPackage(ctx, res.PackageID)
	if err != nil {
		return nil, err
	}
	pkgDict, err := dictization.PackageDictize(ctx, dc, pkg)
	if err != nil {
		return nil, err
	}
	// Release the pooled connection before publishing.
	_ = sess.Rollback()

	s.publish(ctx, &shared.Event{
		ID:       uuid.New().String(),
		Type:     shared.ActivityChangedPackage,
		UserID:   userID,
		ObjectID: pkg.ID,
		Data:     map[string]any{"package": pkgDict},
	})

	return dictization.ResourceDictize(dc, res), nil
}

func (s *CatalogService) publish(ctx context.Context, ev *shared.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishActivity(ctx, ev); err != nil {
		log.Warn("Failed to publish activity", "type", ev.Type, "object", ev.ObjectID, "err", err)
	}
}

// APITokenCreate issues a token for userID and returns the secret.
func (s *CatalogService) APITokenCreate(ctx context.Context, userID, name string) (string, error) {
	sess, _ := s.open()
	defer sess.Close()

	tok, err := apitoken.New(sess, s.cfg).Create(ctx, userID, name, true)
	if err != nil {
		return "", err
	}
	return tok.ID, nil
}

// APITokenRevoke deletes one of userID's tokens.
func (s *CatalogService) APITokenRevoke(ctx context.Context, userID, tokenID string) error {
	sess, _ := s.open()
	defer sess.Close()

	tokens := apitoken.New(sess, s.cfg)
	tok, err := tokens.Get(ctx, tokenID)
	if err != nil {
		return err
	}
	if tok == nil {
		return &store.NotFoundError{Kind: "api_token", Key: "<redacted>"}
	}
	if tok.UserID != userID {
		return ErrForbidden
	}
	if _, err := tokens.Revoke(ctx, tok.ID); err != nil {
		return err
	}
	return nil
}

// GroupDatasetCounts returns the cached per-group package counts.
func (s *CatalogService) GroupDatasetCounts(ctx context.Context) (map[string]int, error) {
	sess, _ := s.open()
	defer sess.Close()
	return s.counts.Get(ctx, sess)
}
