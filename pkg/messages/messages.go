package messages

import (
	"sort"
	"strings"
	"time"

	"collabchat/pkg/errs"
	"collabchat/pkg/logger"
	"collabchat/pkg/models"
	"collabchat/pkg/rooms"
	"collabchat/pkg/security"
	"collabchat/pkg/store"
	"collabchat/pkg/telemetry"
	"collabchat/pkg/utils"
	"collabchat/pkg/validation"
)

// Message Store: append-mostly log of typed messages per room with edit
// history, per-viewer soft delete, reactions, read receipts, forwarding
// and search. Persistence is the source of truth; live fan-out is a
// best-effort side effect that never rolls back an append.

// EditWindow bounds how long after creation a sender may edit.
const EditWindow = 15 * time.Minute

// Publisher receives persisted events for live fan-out. recipients are
// the room members to fall back to offline queueing for; the sender is
// never echoed its own event.
type Publisher interface {
	Publish(roomID, senderID string, recipients []string, ev models.Event)
}

var publisher Publisher

// SetPublisher installs the live delivery layer. A nil publisher leaves
// persistence fully functional with fan-out disabled.
func SetPublisher(p Publisher) { publisher = p }

// locks serializes mutations per message so concurrent edit+delete cannot
// both succeed; the loser observes the winner's state and errors.
var locks = utils.NewLockRing(64)

func publish(roomID, senderID string, recipients []string, ev models.Event) {
	if publisher == nil {
		return
	}
	publisher.Publish(roomID, senderID, recipients, ev)
}

// openForView returns a copy of m with the text payloads opened for
// reading. Edit history carries the superseded text sealed under the
// same key as the current content, so it is opened here too. A cipher
// failure surfaces; it is never masked as plaintext.
func openForView(m models.Message) (models.Message, error) {
	if !m.Sealed {
		return m, nil
	}
	if m.Content.Text != "" {
		pt, err := security.Open(m.Content.Text)
		if err != nil {
			return models.Message{}, err
		}
		m.Content.Text = pt
	}
	if len(m.EditHistory) > 0 {
		hist := make([]models.EditEntry, len(m.EditHistory))
		copy(hist, m.EditHistory)
		for i := range hist {
			if hist[i].PriorContent.Text == "" {
				continue
			}
			prior, err := security.Open(hist[i].PriorContent.Text)
			if err != nil {
				return models.Message{}, err
			}
			hist[i].PriorContent.Text = prior
		}
		m.EditHistory = hist
	}
	m.Sealed = false
	return m, nil
}

// sealForStore seals every text payload in m, current content and edit
// history alike, so the whole record shares one sealed state.
func sealForStore(m *models.Message) error {
	if !security.Enabled() {
		return nil
	}
	sealed := false
	if m.Content.Text != "" {
		ct, err := security.Seal(m.Content.Text)
		if err != nil {
			return err
		}
		m.Content.Text = ct
		sealed = true
	}
	for i := range m.EditHistory {
		if m.EditHistory[i].PriorContent.Text == "" {
			continue
		}
		ct, err := security.Seal(m.EditHistory[i].PriorContent.Text)
		if err != nil {
			return err
		}
		m.EditHistory[i].PriorContent.Text = ct
		sealed = true
	}
	m.Sealed = sealed
	return nil
}

func activeRoomWithMember(roomID, pid string) (models.Room, error) {
	r, err := store.GetRoom(roomID)
	if err != nil {
		return models.Room{}, err
	}
	if r.Status != models.RoomActive {
		return models.Room{}, errs.NotAMember("room " + roomID + " is not active")
	}
	if !r.HasParticipant(pid) {
		return models.Room{}, errs.NotAMember("participant " + pid + " is not a member of room " + roomID)
	}
	return r, nil
}

// Append persists a message in the sender's room, updates the room's last
// message pointer and enqueues the persisted record for live fan-out.
func Append(sender models.Sender, roomID string, t models.MessageType, c models.Content, replyTo string) (models.Message, error) {
	return append_(sender, roomID, t, c, replyTo, true)
}

// AppendSystem appends a platform-originated message to a room. The
// synthetic sender is not a room member, so the membership check is
// skipped; the room must still exist.
func AppendSystem(sender models.Sender, roomID string, t models.MessageType, c models.Content) (models.Message, error) {
	return append_(sender, roomID, t, c, "", false)
}

func append_(sender models.Sender, roomID string, t models.MessageType, c models.Content, replyTo string, requireMember bool) (models.Message, error) {
	if err := validation.MessageInput(roomID, sender, t, c); err != nil {
		return models.Message{}, err
	}
	var room models.Room
	var err error
	if requireMember {
		room, err = activeRoomWithMember(roomID, sender.ParticipantID)
	} else {
		room, err = store.GetRoom(roomID)
	}
	if err != nil {
		return models.Message{}, err
	}
	if replyTo != "" {
		parent, err := store.GetMessage(replyTo)
		if err != nil {
			return models.Message{}, err
		}
		if parent.RoomID != roomID {
			return models.Message{}, errs.Validation("replyTo references a message outside this room")
		}
	}

	now := time.Now().UTC()
	sender.ParticipantType = models.TypeForRole(sender.Role)
	m := models.Message{
		MessageID:   utils.GenMessageID(),
		RoomID:      roomID,
		Sender:      sender,
		MessageType: t,
		Content:     c,
		Status:      models.StatusSent,
		ReplyTo:     replyTo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := sealForStore(&m); err != nil {
		return models.Message{}, err
	}
	if err := store.SaveMessage(m); err != nil {
		return models.Message{}, err
	}
	if err := rooms.Touch(roomID, m.MessageID, now); err != nil {
		logger.Warn("room_touch_failed", "room", roomID, "msg", m.MessageID, "err", err)
	}
	telemetry.MessagesAppended.WithLabelValues(string(t)).Inc()
	logger.Info("message_appended", "room", roomID, "msg", m.MessageID, "type", string(t))

	view, err := openForView(m)
	if err != nil {
		return models.Message{}, err
	}
	publish(roomID, sender.ParticipantID, room.ParticipantIDs(), models.Event{
		Event:  models.EvNewMessage,
		RoomID: roomID,
		Data:   view,
	})
	return view, nil
}

// Edit replaces the content of the sender's own message within the edit
// window, pushing the superseded content onto the edit history.
func Edit(messageID, editorID string, newContent models.Content) (models.Message, error) {
	unlock := locks.Lock(messageID)
	defer unlock()

	m, err := store.GetMessage(messageID)
	if err != nil {
		return models.Message{}, err
	}
	if m.IsDeleted {
		return models.Message{}, errs.Conflict("message was deleted")
	}
	if m.Sender.ParticipantID != editorID {
		return models.Message{}, errs.Forbidden("only the sender can edit a message")
	}
	if time.Since(m.CreatedAt) > EditWindow {
		return models.Message{}, errs.EditWindowExpired("edit window of 15 minutes has expired")
	}
	if err := newContent.Validate(m.MessageType); err != nil {
		return models.Message{}, errs.Validation(err.Error())
	}

	// work on the opened record so the history entry holds the readable
	// superseded text; sealForStore re-seals the whole record
	m, err = openForView(m)
	if err != nil {
		return models.Message{}, err
	}

	now := time.Now().UTC()
	m.EditHistory = append(m.EditHistory, models.EditEntry{
		PriorContent: m.Content,
		EditedAt:     now,
		EditedBy:     editorID,
	})
	m.Content = newContent
	m.IsEdited = true
	m.UpdatedAt = now
	if err := sealForStore(&m); err != nil {
		return models.Message{}, err
	}
	if err := store.SaveMessage(m); err != nil {
		return models.Message{}, err
	}
	telemetry.MessagesEdited.Inc()
	logger.Info("message_edited", "msg", messageID, "by", editorID)
	return openForView(m)
}

// DeleteScope selects between per-viewer hide and global tombstone.
type DeleteScope string

const (
	ScopeSelf     DeleteScope = "self"
	ScopeEveryone DeleteScope = "everyone"
)

// Delete applies a logical delete. scope=everyone tombstones the content
// for all viewers (sender or admin only) and broadcasts a delete event;
// scope=self hides the message for the requester alone, idempotently and
// without broadcast.
func Delete(messageID string, requester models.ParticipantRef, scope DeleteScope) (models.Message, error) {
	unlock := locks.Lock(messageID)
	defer unlock()

	m, err := store.GetMessage(messageID)
	if err != nil {
		return models.Message{}, err
	}

	switch scope {
	case ScopeEveryone:
		if requester.ParticipantID != m.Sender.ParticipantID && requester.Role != models.RoleAdmin {
			return models.Message{}, errs.Forbidden("only the sender or an admin can delete for everyone")
		}
		if m.IsDeleted {
			return openForView(m)
		}
		now := time.Now().UTC()
		m.IsDeleted = true
		m.Content = models.Content{Text: models.DeletedPlaceholder}
		m.EditHistory = nil
		m.Sealed = false
		m.UpdatedAt = now
		if err := store.SaveMessage(m); err != nil {
			return models.Message{}, err
		}
		telemetry.MessagesDeleted.WithLabelValues(string(scope)).Inc()
		logger.Info("message_deleted", "msg", messageID, "scope", "everyone", "by", requester.ParticipantID)
		if room, rerr := store.GetRoom(m.RoomID); rerr == nil {
			publish(m.RoomID, requester.ParticipantID, room.ParticipantIDs(), models.Event{
				Event:  models.EvMessageDeleted,
				RoomID: m.RoomID,
				Data:   map[string]string{"messageId": messageID},
			})
		}
		return m, nil

	case ScopeSelf:
		if m.HiddenFor(requester.ParticipantID) {
			return openForView(m)
		}
		m.DeletedFor = append(m.DeletedFor, requester.ParticipantID)
		m.UpdatedAt = time.Now().UTC()
		if err := store.SaveMessage(m); err != nil {
			return models.Message{}, err
		}
		telemetry.MessagesDeleted.WithLabelValues(string(scope)).Inc()
		return openForView(m)

	default:
		return models.Message{}, errs.Validation("unknown delete scope " + string(scope))
	}
}

// React upserts the participant's reaction: any prior reaction by the
// same participant is replaced, capping each participant at one active
// reaction per message.
func React(messageID, participantID string, kind models.ReactionKind) (models.Message, error) {
	if !models.ValidReaction(kind) {
		return models.Message{}, errs.Validation("unknown reaction kind " + string(kind))
	}
	unlock := locks.Lock(messageID)
	defer unlock()

	m, err := store.GetMessage(messageID)
	if err != nil {
		return models.Message{}, err
	}
	if m.IsDeleted {
		return models.Message{}, errs.Conflict("message was deleted")
	}
	if _, err := activeRoomWithMember(m.RoomID, participantID); err != nil {
		return models.Message{}, err
	}

	kept := m.Reactions[:0]
	for _, r := range m.Reactions {
		if r.ParticipantID != participantID {
			kept = append(kept, r)
		}
	}
	m.Reactions = append(kept, models.Reaction{
		ParticipantID: participantID,
		Kind:          kind,
		At:            time.Now().UTC(),
	})
	m.UpdatedAt = time.Now().UTC()
	if err := store.SaveMessage(m); err != nil {
		return models.Message{}, err
	}
	return openForView(m)
}

// MarkRead appends read receipts for the given message ids and returns
// the count actually modified. Already-read ids and the reader's own
// messages are silently skipped.
func MarkRead(roomID, participantID string, messageIDs []string) (int, error) {
	room, err := activeRoomWithMember(roomID, participantID)
	if err != nil {
		return 0, err
	}
	modified := 0
	var readIDs []string
	for _, id := range messageIDs {
		unlock := locks.Lock(id)
		m, err := store.GetMessage(id)
		if err != nil {
			unlock()
			continue
		}
		if m.RoomID != roomID || m.Sender.ParticipantID == participantID || m.ReadByParticipant(participantID) {
			unlock()
			continue
		}
		m.ReadBy = append(m.ReadBy, models.ReadReceipt{ParticipantID: participantID, At: time.Now().UTC()})
		m.Status = models.StatusRead
		m.UpdatedAt = time.Now().UTC()
		if err := store.SaveMessage(m); err != nil {
			unlock()
			return modified, err
		}
		unlock()
		modified++
		readIDs = append(readIDs, id)
	}
	if modified > 0 {
		publish(roomID, participantID, room.ParticipantIDs(), models.Event{
			Event:  models.EvMessagesRead,
			RoomID: roomID,
			Data: map[string]any{
				"participantId": participantID,
				"messageIds":    readIDs,
			},
		})
	}
	return modified, nil
}

// Page is one page of a room's history.
type Page struct {
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"hasMore"`
}

// List returns one page of the room's messages for the requester. The
// walk is newest-first with a (createdAt, messageId) tiebreak; the page
// itself is returned in chronological order. Messages hidden for the
// requester are excluded; global tombstones appear with placeholder
// content.
func List(roomID, requesterID string, skip, limit int) (Page, error) {
	if _, err := activeRoomWithMember(roomID, requesterID); err != nil {
		return Page{}, err
	}
	if limit <= 0 {
		limit = 50
	}
	// fetch one extra to detect more pages
	raw, err := store.ListRoomMessagesDesc(roomID, skip, limit+1)
	if err != nil {
		return Page{}, err
	}
	hasMore := len(raw) > limit
	if hasMore {
		raw = raw[:limit]
	}
	out := make([]models.Message, 0, len(raw))
	for _, m := range raw {
		if m.HiddenFor(requesterID) {
			continue
		}
		v, err := openForView(m)
		if err != nil {
			return Page{}, err
		}
		out = append(out, v)
	}
	// chronological order within the page
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return Page{Messages: out, HasMore: hasMore}, nil
}

// Search performs a case-insensitive substring match over decrypted text
// and sender display names. scopeRoomIDs == nil searches every active
// room of the requester. Tombstoned messages and messages hidden for the
// requester are excluded. Results are newest-first with a stable
// (createdAt desc, messageId) order across pages.
func Search(requesterID string, scopeRoomIDs []string, query string, skip, limit int) ([]models.Message, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, errs.Validation("search query is required")
	}
	if limit <= 0 {
		limit = 50
	}
	roomIDs := scopeRoomIDs
	if len(roomIDs) == 0 {
		rs, err := rooms.ListFor(requesterID)
		if err != nil {
			return nil, err
		}
		for _, r := range rs {
			roomIDs = append(roomIDs, r.RoomID)
		}
	}
	var hits []models.Message
	for _, roomID := range roomIDs {
		if _, err := activeRoomWithMember(roomID, requesterID); err != nil {
			continue
		}
		msgs, err := store.ListRoomMessages(roomID, 0)
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			if m.IsDeleted || m.HiddenFor(requesterID) {
				continue
			}
			v, err := openForView(m)
			if err != nil {
				return nil, err
			}
			if strings.Contains(strings.ToLower(v.Content.Text), q) ||
				strings.Contains(strings.ToLower(v.Sender.DisplayName), q) {
				hits = append(hits, v)
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].CreatedAt.Equal(hits[j].CreatedAt) {
			return hits[i].CreatedAt.After(hits[j].CreatedAt)
		}
		return hits[i].MessageID < hits[j].MessageID
	})
	if skip >= len(hits) {
		return []models.Message{}, nil
	}
	hits = hits[skip:]
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Forward copies a message into each target room where the forwarder is
// an active member, carrying the original content plus forwarding
// provenance. Target rooms without membership are silently skipped and
// excluded from the result. Forwards to the N rooms are independent;
// partial success is reported by the returned list.
func Forward(messageID string, forwarder models.Sender, targetRoomIDs []string) ([]models.Message, error) {
	orig, err := store.GetMessage(messageID)
	if err != nil {
		return nil, err
	}
	if orig.IsDeleted || orig.HiddenFor(forwarder.ParticipantID) {
		return nil, errs.NotFound("message " + messageID + " is not available")
	}
	if _, err := activeRoomWithMember(orig.RoomID, forwarder.ParticipantID); err != nil {
		return nil, err
	}
	view, err := openForView(orig)
	if err != nil {
		return nil, err
	}

	forwarder.ParticipantType = models.TypeForRole(forwarder.Role)
	created := make([]models.Message, 0, len(targetRoomIDs))
	for _, target := range targetRoomIDs {
		room, err := activeRoomWithMember(target, forwarder.ParticipantID)
		if err != nil {
			logger.Debug("forward_room_skipped", "room", target, "participant", forwarder.ParticipantID)
			continue
		}
		now := time.Now().UTC()
		content := view.Content
		content.Forwarded = &models.ForwardedContent{
			OriginalSender:    view.Sender.DisplayName,
			OriginalMessageID: view.MessageID,
			OriginalRoomID:    view.RoomID,
			ForwardedAt:       now,
		}
		fm := models.Message{
			MessageID:   utils.GenMessageID(),
			RoomID:      target,
			Sender:      forwarder,
			MessageType: models.TypeForwarded,
			Content:     content,
			Status:      models.StatusSent,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := sealForStore(&fm); err != nil {
			return created, err
		}
		if err := store.SaveMessage(fm); err != nil {
			return created, err
		}
		if err := rooms.Touch(target, fm.MessageID, now); err != nil {
			logger.Warn("room_touch_failed", "room", target, "msg", fm.MessageID, "err", err)
		}
		telemetry.MessagesAppended.WithLabelValues(string(models.TypeForwarded)).Inc()
		fv, err := openForView(fm)
		if err != nil {
			return created, err
		}
		publish(target, forwarder.ParticipantID, room.ParticipantIDs(), models.Event{
			Event:  models.EvNewMessage,
			RoomID: target,
			Data:   fv,
		})
		created = append(created, fv)
	}
	return created, nil
}

// UnreadCount counts messages across the participant's active rooms that
// were sent by others and carry no read receipt from the participant.
func UnreadCount(participantID string) (int, error) {
	rs, err := rooms.ListFor(participantID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, r := range rs {
		msgs, err := store.ListRoomMessages(r.RoomID, 0)
		if err != nil {
			return 0, err
		}
		for _, m := range msgs {
			if m.IsDeleted || m.HiddenFor(participantID) {
				continue
			}
			if m.Sender.ParticipantID == participantID || m.ReadByParticipant(participantID) {
				continue
			}
			count++
		}
	}
	return count, nil
}
