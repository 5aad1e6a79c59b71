package validation

import (
	"strings"
	"time"

	"collabchat/pkg/errs"
	"collabchat/pkg/models"
)

// Input validation for the operation contracts. Each validator collects
// every violation and reports them as one ValidationFailed error.

const maxTextLen = 10000

func fail(errsList []string) error {
	return errs.Validation(strings.Join(errsList, "; "))
}

// ParticipantID checks that an identifier is usable inside room ids and
// store keys. The "_" separator and ":" key delimiter are reserved.
func ParticipantID(id string) error {
	var v []string
	if strings.TrimSpace(id) == "" {
		v = append(v, "participant id is required")
	}
	if strings.ContainsAny(id, "_: \t\n") {
		v = append(v, "participant id must not contain '_', ':' or whitespace")
	}
	if len(v) > 0 {
		return fail(v)
	}
	return nil
}

// RoomInput validates a create-or-get room request.
func RoomInput(participantIDs []string, roles []models.Role) error {
	var v []string
	if len(participantIDs) < 2 {
		v = append(v, "at least 2 participants are required")
	}
	if len(roles) != len(participantIDs) {
		v = append(v, "roles must match participants")
	}
	for _, id := range participantIDs {
		if err := ParticipantID(id); err != nil {
			v = append(v, err.Error())
		}
	}
	for _, r := range roles {
		if !models.ValidRole(r) {
			v = append(v, "unknown role "+string(r))
		}
	}
	if len(v) > 0 {
		return fail(v)
	}
	return nil
}

// MessageInput validates a send request before it reaches the store.
func MessageInput(roomID string, sender models.Sender, t models.MessageType, c models.Content) error {
	var v []string
	if roomID == "" {
		v = append(v, "room id is required")
	}
	if sender.ParticipantID == "" {
		v = append(v, "sender id is required")
	}
	if sender.DisplayName == "" {
		v = append(v, "sender display name is required")
	}
	if !models.ValidRole(sender.Role) {
		v = append(v, "unknown sender role "+string(sender.Role))
	}
	if len(c.Text) > maxTextLen {
		v = append(v, "text exceeds maximum length")
	}
	if err := c.Validate(t); err != nil {
		v = append(v, err.Error())
	}
	if len(v) > 0 {
		return fail(v)
	}
	return nil
}

// OfferInput validates the brand's proposed terms.
func OfferInput(influencerID string, d models.OfferDetails) error {
	var v []string
	if err := ParticipantID(influencerID); err != nil {
		v = append(v, err.Error())
	}
	if strings.TrimSpace(d.Title) == "" {
		v = append(v, "offer title is required")
	}
	if strings.TrimSpace(d.Description) == "" {
		v = append(v, "offer description is required")
	}
	if d.Amount < 0 {
		v = append(v, "offer amount must not be negative")
	}
	if d.Deadline.IsZero() || d.Deadline.Before(time.Now().Add(-24*time.Hour)) {
		v = append(v, "offer deadline is required and must not be in the past")
	}
	if len(v) > 0 {
		return fail(v)
	}
	return nil
}

// ResponseInput validates an influencer's response move.
func ResponseInput(rt models.ResponseType) error {
	switch rt {
	case models.RespondAccept, models.RespondDecline, models.RespondNegotiate:
		return nil
	}
	return errs.Validation("unknown response type " + string(rt))
}
