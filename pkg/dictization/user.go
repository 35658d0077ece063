package dictization

import (
	"datacatalog/pkg/model"
)

type UserOptions struct {
	IncludeEmail bool
}

func UserDictize(u *model.User, opts UserOptions) Dict {
	d := Dict{
		"id":           u.ID,
		"name":         u.Name,
		"fullname":     optString(u.Fullname),
		"display_name": u.Name,
		"sysadmin":     u.Sysadmin,
		"state":        u.State,
		"created":      formatTime(u.Created),
	}
	if u.Fullname != nil && *u.Fullname != "" {
		d["display_name"] = *u.Fullname
	}
	if opts.IncludeEmail {
		d["email"] = optString(u.Email)
	}
	return d
}
