package auth

import (
	"fmt"
	"strings"
)

// Role is the coarse-grained classification gating route access.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleExecutive Role = "executive"
	RoleOrganizer Role = "organizer"
	RoleModerator Role = "moderator"
	RoleEndUser   Role = "end_user"
)

// StaffRoles lists every role authenticated through the local token path.
var StaffRoles = []Role{RoleAdmin, RoleExecutive, RoleOrganizer, RoleModerator}

// ParseRole normalizes and validates a role string against the closed set.
func ParseRole(s string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleExecutive:
		return RoleExecutive, nil
	case RoleOrganizer:
		return RoleOrganizer, nil
	case RoleModerator:
		return RoleModerator, nil
	case RoleEndUser:
		return RoleEndUser, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
}

// IsStaff reports whether the role belongs to the back-office set.
func (r Role) IsStaff() bool {
	switch r {
	case RoleAdmin, RoleExecutive, RoleOrganizer, RoleModerator:
		return true
	}
	return false
}

// Capability identifies a fine-grained permitted action. The wildcard grants
// every capability, including ones added later.
const CapabilityAll = "*"

const (
	CapManageRegistrations = "manage_registrations"
	CapVerifyRegistrations = "verify_registrations"
	CapManageCA            = "manage_ca"
	CapManageMessages      = "manage_messages"
	CapManageUsers         = "manage_users"
	CapSendEmails          = "send_emails"
	CapExportData          = "export_data"
	CapViewAnalytics       = "view_analytics"
)

// defaultGrants is the single static role policy table. Per-account grants may
// widen these defaults but the system never assigns less at creation.
var defaultGrants = map[Role][]string{
	RoleAdmin: {CapabilityAll},
	RoleExecutive: {
		CapManageRegistrations,
		CapVerifyRegistrations,
		CapManageCA,
		CapManageMessages,
		CapSendEmails,
		CapExportData,
		CapViewAnalytics,
	},
	RoleOrganizer: {
		CapManageRegistrations,
		CapExportData,
		CapViewAnalytics,
	},
	RoleModerator: {
		CapExportData,
		CapViewAnalytics,
	},
	RoleEndUser: {},
}

// DefaultPermissions returns a copy of the default capability set for a role.
func DefaultPermissions(role Role) []string {
	grants := defaultGrants[role]
	out := make([]string, len(grants))
	copy(out, grants)
	return out
}

// RoleAllowed reports whether role is a member of the route's allowed set.
func RoleAllowed(role Role, allowed []Role) bool {
	for _, a := range allowed {
		if a == role {
			return true
		}
	}
	return false
}
