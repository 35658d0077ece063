package model

// MemberKind names the relationship a Member row expresses. Each kind is
// persisted in its own join table.
type MemberKind int

const (
	// MemberPackage links a group (or organization) to a package.
	MemberPackage MemberKind = iota + 1
	// MemberTag links a group to a tag.
	MemberTag
	// MemberGroup links a parent group to a child group.
	MemberGroup
)

func (k MemberKind) String() string {
	switch k {
	case MemberPackage:
		return "package"
	case MemberTag:
		return "tag"
	case MemberGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Member associates a group with another entity. GroupID is always the
// owning side: the group holding the package or tag, or the parent group.
type Member struct {
	ID       string     `json:"id"`
	Kind     MemberKind `json:"kind"`
	GroupID  string     `json:"group_id"`
	TargetID string     `json:"target_id"`
	Capacity string     `json:"capacity"`
	State    string     `json:"state"`
}

// PackageMember is a membership as seen from a package: the group plus the
// capacity the package was added with.
type PackageMember struct {
	Group    Group
	Capacity string
}
