package dictization

import (
	"context"
	"fmt"

	"datacatalog/pkg/model"
)

// PackagesField selects how a group's packages appear in its dict.
type PackagesField int

const (
	// PackagesOmit emits neither packages nor, unless asked for, a count.
	PackagesOmit PackagesField = iota
	// PackagesDatasets embeds the dictized packages.
	PackagesDatasets
	// PackagesDatasetCount emits package_count without the list.
	PackagesDatasetCount
)

type GroupOptions struct {
	PackagesField     PackagesField
	IncludeExtras     bool
	IncludeTags       bool
	IncludeGroups     bool
	WithPackageCounts bool
}

// DefaultGroupOptions is the full single-group shape.
func DefaultGroupOptions() GroupOptions {
	return GroupOptions{
		PackagesField:     PackagesDatasets,
		IncludeExtras:     true,
		IncludeTags:       true,
		IncludeGroups:     true,
		WithPackageCounts: true,
	}
}

func groupFields(g *model.Group) Dict {
	return Dict{
		"id":              g.ID,
		"name":            g.Name,
		"title":           g.Title,
		"type":            g.Type,
		"description":     g.Description,
		"image_url":       g.ImageURL,
		"created":         formatTime(g.Created),
		"is_organization": g.IsOrganization,
		"approval_status": g.ApprovalStatus,
		"state":           g.State,
	}
}

// GroupDictize dictizes a group or organization.
func GroupDictize(ctx context.Context, dc *Context, g *model.Group, opts GroupOptions) (Dict, error) {
	d := groupFields(g)
	d["display_name"] = g.DisplayName()
	d["image_display_url"] = dc.imageDisplayURL(g.ImageURL)

	if opts.IncludeExtras {
		extras, err := dc.Session.GroupExtras(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		d["extras"] = extrasDictize(extras)
	}

	if opts.IncludeTags {
		tags, err := dc.Session.GroupTags(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		d["tags"] = tagSummaries(tags)
	}

	if opts.IncludeGroups {
		parents, err := dc.Session.ParentGroups(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		stubs := make([]Dict, 0, len(parents))
		for i := range parents {
			stubs = append(stubs, dc.parentStub(&parents[i]))
		}
		d["groups"] = stubs
	}

	if opts.PackagesField == PackagesDatasets {
		pkgs, err := dc.Session.PackagesInGroup(ctx, g.ID, dc.packageLimit())
		if err != nil {
			return nil, err
		}
		list := make([]Dict, 0, len(pkgs))
		for i := range pkgs {
			pd, err := PackageDictize(ctx, dc, &pkgs[i])
			if err != nil {
				return nil, fmt.Errorf("failed to dictize package %s: %w", pkgs[i].Name, err)
			}
			list = append(list, pd)
		}
		d["packages"] = list
	}

	if opts.WithPackageCounts || opts.PackagesField == PackagesDatasetCount {
		n, err := dc.packageCount(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		d["package_count"] = n
	}

	return d, nil
}

// parentStub is a parent group as embedded in its child. It is never
// expanded further; package_count comes from the aggregate map only.
func (dc *Context) parentStub(g *model.Group) Dict {
	d := groupFields(g)
	d["display_name"] = g.DisplayName()
	d["image_display_url"] = dc.imageDisplayURL(g.ImageURL)
	d["package_count"] = dc.DatasetCounts[g.ID]
	return d
}

func (dc *Context) packageCount(ctx context.Context, groupID string) (int, error) {
	if dc.DatasetCounts != nil {
		return dc.DatasetCounts[groupID], nil
	}
	if dc.Counts != nil {
		counts, err := dc.Counts.Get(ctx, dc.Session)
		if err != nil {
			return 0, err
		}
		return counts[groupID], nil
	}
	return dc.Session.CountPackagesInGroup(ctx, groupID)
}

func extrasDictize(extras []model.Extra) []Dict {
	out := make([]Dict, 0, len(extras))
	for _, e := range extras {
		out = append(out, Dict{"key": e.Key, "value": e.Value, "state": e.State})
	}
	return out
}

func tagSummaries(tags []model.PackageTag) []Dict {
	out := make([]Dict, 0, len(tags))
	for _, t := range tags {
		d := Dict{
			"id":            t.ID,
			"name":          t.Name,
			"state":         t.State,
			"vocabulary_id": optString(t.VocabularyID),
		}
		if t.VocabularyID == nil {
			d["display_name"] = t.Name
		}
		out = append(out, d)
	}
	return out
}
