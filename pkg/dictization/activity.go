package dictization

import (
	"datacatalog/pkg/model"
)

// ActivityDictize dictizes an activity. Without includeData the payload is
// reduced to the title of each object it snapshots, so {"package": {...},
// "actor": "x"} becomes {"package": {"title": ...}}.
func ActivityDictize(a *model.Activity, includeData bool) Dict {
	d := Dict{
		"id":            a.ID,
		"user_id":       a.UserID,
		"object_id":     a.ObjectID,
		"activity_type": a.ActivityType,
		"timestamp":     formatTime(a.Timestamp),
	}
	if includeData {
		d["data"] = copyData(a.Data)
	} else {
		d["data"] = reduceActivityData(a.Data)
	}
	return d
}

func reduceActivityData(data map[string]any) map[string]any {
	out := make(map[string]any)
	for key, value := range data {
		obj, ok := value.(map[string]any)
		if !ok {
			continue
		}
		if title, ok := obj["title"]; ok {
			out[key] = map[string]any{"title": title}
		}
	}
	return out
}

func copyData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch v := v.(type) {
		case map[string]any:
			out[k] = copyData(v)
		case []any:
			out[k] = copySlice(v)
		default:
			out[k] = v
		}
	}
	return out
}

func copySlice(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		switch v := v.(type) {
		case map[string]any:
			out[i] = copyData(v)
		case []any:
			out[i] = copySlice(v)
		default:
			out[i] = v
		}
	}
	return out
}
