package shared

import "strings"

// NATS subject patterns
const (
	SubjectPrefix = "catalog"

	// Activity subjects: catalog.activity.<object kind>.<verb>
	SubjectActivity    = "catalog.activity"
	SubjectActivityAll = "catalog.activity.>"

	SubjectSystemHealth = "catalog.system.health"
)

// Stream names
const (
	StreamActivity = "CATALOG_ACTIVITY"
)

// Consumer names
const (
	ConsumerActivityRecorder = "activity-recorder"
)

// ActivitySubject maps an activity type such as "new package" to
// catalog.activity.package.new. Types without a verb use "event".
func ActivitySubject(activityType string) string {
	fields := strings.Fields(activityType)
	switch len(fields) {
	case 0:
		return SubjectActivity + ".unknown.event"
	case 1:
		return SubjectActivity + "." + fields[0] + ".event"
	default:
		return SubjectActivity + "." + fields[len(fields)-1] + "." + strings.Join(fields[:len(fields)-1], "_")
	}
}

// ActivityObjectKind is the kind of object an activity type refers to,
// the last word of the type.
func ActivityObjectKind(activityType string) string {
	fields := strings.Fields(activityType)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
