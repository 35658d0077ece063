package dictization

import (
	"context"
	"errors"
	"strings"

	"datacatalog/pkg/model"
	"datacatalog/pkg/store"
)

// PackageDictize dictizes a package with its resources, tags, extras,
// groups, owning organization and relationships. The title is trimmed in
// the output only.
func PackageDictize(ctx context.Context, dc *Context, p *model.Package) (Dict, error) {
	d := Dict{
		"id":                p.ID,
		"name":              p.Name,
		"title":             strings.TrimSpace(p.Title),
		"type":              p.Type,
		"state":             p.State,
		"notes":             optString(p.Notes),
		"url":               optString(p.URL),
		"version":           optString(p.Version),
		"author":            optString(p.Author),
		"author_email":      optString(p.AuthorEmail),
		"maintainer":        optString(p.Maintainer),
		"maintainer_email":  optString(p.MaintainerEmail),
		"license_id":        optString(p.LicenseID),
		"owner_org":         optString(p.OwnerOrg),
		"private":           p.Private,
		"creator_user_id":   optString(p.CreatorUserID),
		"metadata_created":  formatTime(p.MetadataCreated),
		"metadata_modified": formatTime(p.MetadataModified),
	}
	dc.addLicense(d, p.LicenseID)

	resources, err := dc.Session.PackageResources(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	rds := make([]Dict, 0, len(resources))
	for i := range resources {
		rds = append(rds, ResourceDictize(dc, &resources[i]))
	}
	d["resources"] = rds
	d["num_resources"] = len(rds)

	tags, err := dc.Session.PackageTags(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	d["tags"] = tagSummaries(tags)
	d["num_tags"] = len(tags)

	extras, err := dc.Session.PackageExtras(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	d["extras"] = extrasDictize(extras)

	members, err := dc.Session.PackageGroups(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	groups := make([]Dict, 0, len(members))
	for i := range members {
		g := &members[i].Group
		gd := groupFields(g)
		gd["display_name"] = g.DisplayName()
		gd["image_display_url"] = dc.imageDisplayURL(g.ImageURL)
		gd["capacity"] = members[i].Capacity
		groups = append(groups, gd)
	}
	d["groups"] = groups

	org, err := dc.organizationSummary(ctx, p.OwnerOrg)
	if err != nil {
		return nil, err
	}
	if org != nil {
		d["organization"] = org
	} else {
		d["organization"] = nil
	}

	asSubject, asObject, err := dc.Session.PackageRelationships(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	d["relationships_as_subject"] = relationshipsDictize(asSubject)
	d["relationships_as_object"] = relationshipsDictize(asObject)

	return d, nil
}

func (dc *Context) addLicense(d Dict, licenseID *string) {
	d["isopen"] = false
	if licenseID == nil {
		d["license_title"] = nil
		return
	}
	l, ok := dc.Licenses.Get(*licenseID)
	if !ok {
		d["license_title"] = *licenseID
		return
	}
	d["license_title"] = l.Title
	d["isopen"] = l.IsOpen
	if l.URL != "" {
		d["license_url"] = l.URL
	}
}

// organizationSummary returns nil for a missing, deleted or
// non-organization owner.
func (dc *Context) organizationSummary(ctx context.Context, ownerOrg *string) (Dict, error) {
	if ownerOrg == nil || *ownerOrg == "" {
		return nil, nil
	}
	org, err := dc.Session.GetGroup(ctx, *ownerOrg)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !org.IsOrganization || org.State != model.StateActive {
		return nil, nil
	}
	return groupFields(org), nil
}

func relationshipsDictize(rels []model.PackageRelationship) []Dict {
	out := make([]Dict, 0, len(rels))
	for _, r := range rels {
		out = append(out, Dict{
			"id":                 r.ID,
			"subject_package_id": r.SubjectPackageID,
			"object_package_id":  r.ObjectPackageID,
			"type":               r.Type,
			"comment":            r.Comment,
			"state":              r.State,
		})
	}
	return out
}
