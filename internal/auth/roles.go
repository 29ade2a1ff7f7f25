package auth

import (
	"caredesk.io/telehealth/internal/store"
)

// Capability names one operation a role may invoke. The table below is the
// single source of truth for who may do what; handlers check it through
// Can instead of comparing role strings inline.
type Capability string

const (
	CapSubmitQuery       Capability = "submit_query"
	CapListQueries       Capability = "list_queries"
	CapApproveResponse   Capability = "approve_response"
	CapEditResponse      Capability = "edit_response"
	CapReadNotifications Capability = "read_notifications"
	CapListPatients      Capability = "list_patients"
)

var capabilities = map[store.Role]map[Capability]bool{
	store.RolePatient: {
		CapSubmitQuery:       true,
		CapListQueries:       true,
		CapReadNotifications: true,
	},
	store.RoleClinician: {
		CapListQueries:       true,
		CapApproveResponse:   true,
		CapEditResponse:      true,
		CapReadNotifications: true,
		CapListPatients:      true,
	},
}

// ValidRole reports whether a role belongs to the closed set.
func ValidRole(role store.Role) bool {
	_, ok := capabilities[role]
	return ok
}

// Can reports whether a role may invoke an operation. Unknown roles can do
// nothing.
func Can(role store.Role, cap Capability) bool {
	return capabilities[role][cap]
}
