package rooms

import (
	"sort"
	"sync"
	"time"

	"collabchat/pkg/errs"
	"collabchat/pkg/logger"
	"collabchat/pkg/models"
	"collabchat/pkg/store"
	"collabchat/pkg/validation"
)

// Room Directory: deterministic room identity from a participant set,
// idempotent creation, membership and status tracking.

// createMu serializes room creation so a concurrent pair of GetOrCreate
// calls for the same set cannot interleave the exists-check and write.
// The write itself is idempotent either way since the id is a pure
// function of the set.
var createMu sync.Mutex

// GetOrCreate resolves the room for the given participant set, creating
// it with status=active when absent. Repeat calls with the same set (any
// ordering) return the same room unchanged.
func GetOrCreate(caller models.ParticipantRef, participantIDs []string, roles []models.Role) (models.Room, error) {
	if err := validation.RoomInput(participantIDs, roles); err != nil {
		return models.Room{}, err
	}
	roomID := models.RoomIDFor(participantIDs)

	createMu.Lock()
	defer createMu.Unlock()

	if r, err := store.GetRoom(roomID); err == nil {
		return r, nil
	}

	now := time.Now().UTC()
	chatType := models.ChatDirect
	if len(participantIDs) > 2 {
		chatType = models.ChatGroup
	}
	members := make([]models.Member, 0, len(participantIDs))
	seen := map[string]struct{}{}
	for i, id := range participantIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, models.Member{
			ParticipantRef: models.NewParticipantRef(id, roles[i]),
			JoinedAt:       now,
		})
	}
	if len(members) < 2 {
		return models.Room{}, errs.Validation("at least 2 distinct participants are required")
	}
	r := models.Room{
		RoomID:       roomID,
		Participants: members,
		ChatType:     chatType,
		Status:       models.RoomActive,
		CreatedBy:    caller,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.SaveRoom(r); err != nil {
		return models.Room{}, err
	}
	logger.Info("room_created", "room", roomID, "participants", len(members), "by", caller.ParticipantID)
	return r, nil
}

// ListFor returns the participant's active rooms ordered by updatedAt
// descending.
func ListFor(participantID string) ([]models.Room, error) {
	all, err := store.ListRoomsFor(participantID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if r.Status == models.RoomActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Get returns the room record or errs.NotFound.
func Get(roomID string) (models.Room, error) { return store.GetRoom(roomID) }

// AddParticipant adds a member to an existing room. Restricted to admin
// callers; fails with AlreadyMember when the participant is present.
func AddParticipant(roomID string, caller models.ParticipantRef, ref models.ParticipantRef) (models.Room, error) {
	if caller.Role != models.RoleAdmin {
		return models.Room{}, errs.Forbidden("only admins can add participants")
	}
	if err := validation.ParticipantID(ref.ParticipantID); err != nil {
		return models.Room{}, err
	}
	createMu.Lock()
	defer createMu.Unlock()
	r, err := store.GetRoom(roomID)
	if err != nil {
		return models.Room{}, err
	}
	if r.HasParticipant(ref.ParticipantID) {
		return models.Room{}, errs.AlreadyMember("participant " + ref.ParticipantID + " is already a member")
	}
	now := time.Now().UTC()
	ref.ParticipantType = models.TypeForRole(ref.Role)
	r.Participants = append(r.Participants, models.Member{ParticipantRef: ref, JoinedAt: now})
	r.UpdatedAt = now
	if err := store.SaveRoom(r); err != nil {
		return models.Room{}, err
	}
	logger.Info("room_participant_added", "room", roomID, "participant", ref.ParticipantID, "by", caller.ParticipantID)
	return r, nil
}

// SetStatus transitions the room's administrative status. Restricted to
// admin callers. Rooms are never hard-deleted.
func SetStatus(roomID string, caller models.ParticipantRef, status models.RoomStatus) (models.Room, error) {
	if caller.Role != models.RoleAdmin {
		return models.Room{}, errs.Forbidden("only admins can change room status")
	}
	switch status {
	case models.RoomActive, models.RoomInactive, models.RoomBlocked:
	default:
		return models.Room{}, errs.Validation("unknown room status " + string(status))
	}
	createMu.Lock()
	defer createMu.Unlock()
	r, err := store.GetRoom(roomID)
	if err != nil {
		return models.Room{}, err
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	if err := store.SaveRoom(r); err != nil {
		return models.Room{}, err
	}
	logger.Info("room_status_changed", "room", roomID, "status", string(status))
	return r, nil
}

// Touch records a successful message append on the owning room. The last
// message pointer is never rolled back.
func Touch(roomID, lastMessageID string, at time.Time) error {
	createMu.Lock()
	defer createMu.Unlock()
	r, err := store.GetRoom(roomID)
	if err != nil {
		return err
	}
	r.LastMessageID = lastMessageID
	r.UpdatedAt = at
	return store.SaveRoom(r)
}
