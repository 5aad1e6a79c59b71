package models

import "time"

// ParticipantType selects which identity collection owns a participant id.
type ParticipantType string

const (
	ParticipantPrimary    ParticipantType = "primary"
	ParticipantInfluencer ParticipantType = "influencer"
)

// Role is the platform role of a participant.
type Role string

const (
	RoleBrand      Role = "brand"
	RoleInfluencer Role = "influencer"
	RoleAdmin      Role = "admin"
	RoleVendor     Role = "vendor"
)

// TypeForRole derives the owning identity collection from a role. The
// influencer role maps to the influencer collection; every other role is
// stored in the primary collection.
func TypeForRole(r Role) ParticipantType {
	if r == RoleInfluencer {
		return ParticipantInfluencer
	}
	return ParticipantPrimary
}

// ValidRole reports whether r is one of the known platform roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleBrand, RoleInfluencer, RoleAdmin, RoleVendor:
		return true
	}
	return false
}

// ParticipantRef identifies an actor inside a room. ParticipantType is
// always consistent with Role (see TypeForRole).
type ParticipantRef struct {
	ParticipantID   string          `json:"participantId"`
	ParticipantType ParticipantType `json:"participantType"`
	Role            Role            `json:"role"`
}

// NewParticipantRef builds a ref with the type derived from the role.
func NewParticipantRef(id string, role Role) ParticipantRef {
	return ParticipantRef{ParticipantID: id, ParticipantType: TypeForRole(role), Role: role}
}

// Member is a ParticipantRef plus the time it joined the room.
type Member struct {
	ParticipantRef
	JoinedAt time.Time `json:"joinedAt"`
}

// Sender is a ParticipantRef plus a display name for rendering message
// authorship without an identity lookup on every read.
type Sender struct {
	ParticipantRef
	DisplayName string `json:"displayName"`
}
