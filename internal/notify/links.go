// Package notify maps notification category tags to navigable links
// and display icons. The tables are static; unknown tags resolve to
// safe defaults and never fail.
package notify

import "strconv"

// Icon names resolved by category-tag keyword groups.
const (
	IconPerson    = "person"
	IconBriefcase = "briefcase"
	IconWarning   = "warning"
)

// routes maps a category tag to a link builder.
var routes = map[string]func(id string) string{
	"user":           func(id string) string { return "/user/" + id },
	"ready_task":     func(id string) string { return "/ready/" + id },
	"message":        func(id string) string { return "/messages/" + id },
	"purchased_task": func(id string) string { return "/ready/" + id },
}

// iconGroups assigns an icon per keyword group; first match wins.
var iconGroups = []struct {
	keys []string
	icon string
}{
	{keys: []string{"user_events", "user_activity"}, icon: IconPerson},
	{keys: []string{"ready_task", "task_completed"}, icon: IconBriefcase},
	{keys: []string{"moderation", "report"}, icon: IconWarning},
}

// Link builds the navigation target for a notification. Purchased-task
// notifications route by their auxiliary data when present; unknown
// tags resolve to "#".
func Link(typeName string, objectID int64, addData string) string {
	build, ok := routes[typeName]
	if !ok {
		return "#"
	}

	id := strconv.FormatInt(objectID, 10)
	if typeName == "purchased_task" && addData != "" {
		id = addData
	}
	return build(id)
}

// Icon resolves a display icon by keyword-group membership. No match
// yields the empty string, which renders as no icon.
func Icon(typeName string) string {
	for _, group := range iconGroups {
		for _, key := range group.keys {
			if key == typeName {
				return group.icon
			}
		}
	}
	return ""
}
