package dictization

import (
	"context"
	"fmt"

	"datacatalog/pkg/model"
)

// TagDictize dictizes a tag. With includeDatasets every active package
// carrying the tag is embedded once. Callers wanting the usual shape pass
// true.
func TagDictize(ctx context.Context, dc *Context, t *model.Tag, includeDatasets bool) (Dict, error) {
	d := Dict{
		"id":            t.ID,
		"name":          t.Name,
		"vocabulary_id": optString(t.VocabularyID),
	}
	if t.VocabularyID == nil {
		d["display_name"] = t.Name
	}
	if !includeDatasets {
		return d, nil
	}

	pkgs, err := dc.Session.PackagesWithTag(ctx, t.ID)
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
	return d, nil
}

// VocabularyDictize dictizes a vocabulary and its tags. includeDatasets is
// passed on to each tag; it is usually false here.
func VocabularyDictize(ctx context.Context, dc *Context, v *model.Vocabulary, includeDatasets bool) (Dict, error) {
	tags, err := dc.Session.VocabularyTags(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	list := make([]Dict, 0, len(tags))
	for i := range tags {
		td, err := TagDictize(ctx, dc, &tags[i], includeDatasets)
		if err != nil {
			return nil, err
		}
		list = append(list, td)
	}
	return Dict{"id": v.ID, "name": v.Name, "tags": list}, nil
}
