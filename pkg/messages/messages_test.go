package messages

import (
	"errors"
	"testing"
	"time"

	"collabchat/pkg/errs"
	"collabchat/pkg/models"
	"collabchat/pkg/rooms"
	"collabchat/pkg/security"
	"collabchat/pkg/store"
	"collabchat/pkg/utils"
)

func openStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func sender(id string, role models.Role) models.Sender {
	return models.Sender{ParticipantRef: models.NewParticipantRef(id, role), DisplayName: "name-" + id}
}

func makeRoom(t *testing.T, ids ...string) models.Room {
	t.Helper()
	roles := make([]models.Role, len(ids))
	roles[0] = models.RoleBrand
	for i := 1; i < len(ids); i++ {
		roles[i] = models.RoleInfluencer
	}
	r, err := rooms.GetOrCreate(models.NewParticipantRef(ids[0], roles[0]), ids, roles)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return r
}

func textContent(s string) models.Content { return models.Content{Text: s} }

func TestAppendAndList(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")

	for _, txt := range []string{"one", "two", "three"} {
		if _, err := Append(sender("b1", models.RoleBrand), room.RoomID, models.TypeText, textContent(txt), ""); err != nil {
			t.Fatalf("append %q: %v", txt, err)
		}
	}

	page, err := List(room.RoomID, "i1", 0, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !page.HasMore {
		t.Fatalf("expected more pages")
	}
	if len(page.Messages) != 2 {
		t.Fatalf("page size: got %d", len(page.Messages))
	}
	// newest page, chronological inside the page
	if page.Messages[0].Content.Text != "two" || page.Messages[1].Content.Text != "three" {
		t.Fatalf("page order: %q, %q", page.Messages[0].Content.Text, page.Messages[1].Content.Text)
	}

	page2, err := List(room.RoomID, "i1", 2, 2)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if page2.HasMore || len(page2.Messages) != 1 || page2.Messages[0].Content.Text != "one" {
		t.Fatalf("second page wrong: %+v", page2)
	}

	// room activity pointer follows the latest append
	r, err := rooms.Get(room.RoomID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if r.LastMessageID == "" {
		t.Fatalf("last message pointer not set")
	}
}

func TestAppendRequiresMembership(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")

	_, err := Append(sender("outsider", models.RoleInfluencer), room.RoomID, models.TypeText, textContent("hi"), "")
	if !errors.Is(err, errs.ErrNotAMember) {
		t.Fatalf("want NOT_A_MEMBER, got %v", err)
	}
}

func TestAppendRejectedOnInactiveRoom(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")
	admin := models.NewParticipantRef("ops", models.RoleAdmin)
	if _, err := rooms.SetStatus(room.RoomID, admin, models.RoomInactive); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if _, err := Append(sender("b1", models.RoleBrand), room.RoomID, models.TypeText, textContent("hi"), ""); err == nil {
		t.Fatalf("append to inactive room succeeded")
	}
}

func TestAppendValidatesContentShape(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")

	// offer type without offer payload
	_, err := Append(sender("b1", models.RoleBrand), room.RoomID, models.TypeOffer, textContent("bare"), "")
	if errs.KindOf(err) != errs.KindValidationFailed {
		t.Fatalf("want validation failure, got %v", err)
	}
}

func TestReplyToMustBeSameRoom(t *testing.T) {
	openStore(t)
	r1 := makeRoom(t, "b1", "i1")
	r2 := makeRoom(t, "b1", "i2")

	m, err := Append(sender("b1", models.RoleBrand), r1.RoomID, models.TypeText, textContent("root"), "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := Append(sender("b1", models.RoleBrand), r2.RoomID, models.TypeText, textContent("stray reply"), m.MessageID); err == nil {
		t.Fatalf("cross-room reply accepted")
	}
	if _, err := Append(sender("i1", models.RoleInfluencer), r1.RoomID, models.TypeText, textContent("reply"), m.MessageID); err != nil {
		t.Fatalf("in-room reply: %v", err)
	}
}

func TestEditOwnMessage(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")

	m, err := Append(sender("b1", models.RoleBrand), room.RoomID, models.TypeText, textContent("draft"), "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	edited, err := Edit(m.MessageID, "b1", textContent("final"))
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Content.Text != "final" || !edited.IsEdited {
		t.Fatalf("edit not applied: %+v", edited)
	}
	if len(edited.EditHistory) != 1 || edited.EditHistory[0].PriorContent.Text != "draft" {
		t.Fatalf("edit history wrong: %+v", edited.EditHistory)
	}

	// only the sender may edit
	if _, err := Edit(m.MessageID, "i1", textContent("hijack")); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("foreign edit: got %v", err)
	}
}

func TestEditWindowExpires(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")

	old := models.Message{
		MessageID:   utils.GenMessageID(),
		RoomID:      room.RoomID,
		Sender:      sender("b1", models.RoleBrand),
		MessageType: models.TypeText,
		Content:     textContent("ancient"),
		Status:      models.StatusSent,
		CreatedAt:   time.Now().UTC().Add(-time.Hour),
		UpdatedAt:   time.Now().UTC().Add(-time.Hour),
	}
	if err := store.SaveMessage(old); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := Edit(old.MessageID, "b1", textContent("too late")); !errors.Is(err, errs.ErrEditWindowExpired) {
		t.Fatalf("want EDIT_WINDOW_EXPIRED, got %v", err)
	}
}

func TestDeleteForEveryone(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")

	m, err := Append(sender("b1", models.RoleBrand), room.RoomID, models.TypeText, textContent("oops"), "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	// non-sender, non-admin cannot tombstone
	if _, err := Delete(m.MessageID, models.NewParticipantRef("i1", models.RoleInfluencer), ScopeEveryone); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("foreign delete: got %v", err)
	}

	del, err := Delete(m.MessageID, models.NewParticipantRef("b1", models.RoleBrand), ScopeEveryone)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !del.IsDeleted || del.Content.Text != models.DeletedPlaceholder {
		t.Fatalf("tombstone wrong: %+v", del)
	}

	// tombstone still appears in history, with placeholder text
	page, err := List(room.RoomID, "i1", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].Content.Text != models.DeletedPlaceholder {
		t.Fatalf("tombstone not listed: %+v", page.Messages)
	}

	// editing a tombstone conflicts
	if _, err := Edit(m.MessageID, "b1", textContent("resurrect")); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("edit after delete: got %v", err)
	}
}

func TestDeleteForSelfIsIdempotent(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")

	m, err := Append(sender("b1", models.RoleBrand), room.RoomID, models.TypeText, textContent("keep for sender"), "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := Delete(m.MessageID, models.NewParticipantRef("i1", models.RoleInfluencer), ScopeSelf); err != nil {
			t.Fatalf("self delete #%d: %v", i+1, err)
		}
	}

	hidden, err := List(room.RoomID, "i1", 0, 10)
	if err != nil {
		t.Fatalf("list as hider: %v", err)
	}
	if len(hidden.Messages) != 0 {
		t.Fatalf("hidden message still visible to hider")
	}
	visible, err := List(room.RoomID, "b1", 0, 10)
	if err != nil {
		t.Fatalf("list as sender: %v", err)
	}
	if len(visible.Messages) != 1 {
		t.Fatalf("message hidden for the wrong viewer")
	}
}

func TestReactionUpsert(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")

	m, err := Append(sender("b1", models.RoleBrand), room.RoomID, models.TypeText, textContent("rate me"), "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := React(m.MessageID, "i1", "explode"); errs.KindOf(err) != errs.KindValidationFailed {
		t.Fatalf("unknown kind accepted: %v", err)
	}
	if _, err := React(m.MessageID, "i1", models.ReactLike); err != nil {
		t.Fatalf("react: %v", err)
	}
	got, err := React(m.MessageID, "i1", models.ReactLove)
	if err != nil {
		t.Fatalf("re-react: %v", err)
	}
	if len(got.Reactions) != 1 || got.Reactions[0].Kind != models.ReactLove {
		t.Fatalf("reaction upsert wrong: %+v", got.Reactions)
	}
}

func TestMarkReadCountsOnlyNewReceipts(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")

	m1, _ := Append(sender("b1", models.RoleBrand), room.RoomID, models.TypeText, textContent("a"), "")
	m2, _ := Append(sender("b1", models.RoleBrand), room.RoomID, models.TypeText, textContent("b"), "")
	mine, _ := Append(sender("i1", models.RoleInfluencer), room.RoomID, models.TypeText, textContent("mine"), "")

	n, err := MarkRead(room.RoomID, "i1", []string{m1.MessageID, m2.MessageID, mine.MessageID, "msg_ghost"})
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n != 2 {
		t.Fatalf("modified count: got %d want 2", n)
	}
	// repeat is a no-op
	n, err = MarkRead(room.RoomID, "i1", []string{m1.MessageID, m2.MessageID})
	if err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	if n != 0 {
		t.Fatalf("repeat modified count: got %d want 0", n)
	}

	cnt, err := UnreadCount("i1")
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("unread after mark read: got %d", cnt)
	}
	cnt, err = UnreadCount("b1")
	if err != nil {
		t.Fatalf("unread count b1: %v", err)
	}
	if cnt != 1 {
		t.Fatalf("b1 unread: got %d want 1", cnt)
	}
}

func TestForwardSkipsNonMemberRooms(t *testing.T) {
	openStore(t)
	src := makeRoom(t, "b1", "i1")
	dst := makeRoom(t, "i1", "i2")
	foreign := makeRoom(t, "b9", "i9")

	orig, err := Append(sender("b1", models.RoleBrand), src.RoomID, models.TypeText, textContent("pass it on"), "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	fwd, err := Forward(orig.MessageID, sender("i1", models.RoleInfluencer), []string{dst.RoomID, foreign.RoomID})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if len(fwd) != 1 {
		t.Fatalf("forwarded count: got %d want 1", len(fwd))
	}
	f := fwd[0]
	if f.RoomID != dst.RoomID || f.MessageType != models.TypeForwarded {
		t.Fatalf("forward target wrong: %+v", f)
	}
	if f.Content.Text != "pass it on" || f.Content.Forwarded == nil {
		t.Fatalf("forward content wrong: %+v", f.Content)
	}
	if f.Content.Forwarded.OriginalMessageID != orig.MessageID || f.Content.Forwarded.OriginalRoomID != src.RoomID {
		t.Fatalf("provenance wrong: %+v", f.Content.Forwarded)
	}
}

func TestSearch(t *testing.T) {
	openStore(t)
	room := makeRoom(t, "b1", "i1")

	Append(sender("b1", models.RoleBrand), room.RoomID, models.TypeText, textContent("Spring Campaign brief"), "")
	Append(sender("i1", models.RoleInfluencer), room.RoomID, models.TypeText, textContent("sounds good"), "")
	gone, _ := Append(sender("b1", models.RoleBrand), room.RoomID, models.TypeText, textContent("campaign secret"), "")
	if _, err := Delete(gone.MessageID, models.NewParticipantRef("b1", models.RoleBrand), ScopeEveryone); err != nil {
		t.Fatalf("delete: %v", err)
	}

	hits, err := Search("i1", nil, "CAMPAIGN", 0, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Content.Text != "Spring Campaign brief" {
		t.Fatalf("search hits wrong: %+v", hits)
	}

	// display-name match
	hits, err = Search("i1", nil, "name-b1", 0, 10)
	if err != nil {
		t.Fatalf("search by name: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("name search hits: got %d", len(hits))
	}

	if _, err := Search("i1", nil, "   ", 0, 10); errs.KindOf(err) != errs.KindValidationFailed {
		t.Fatalf("blank query accepted: %v", err)
	}
}

func TestSealedAtRestOpenInViews(t *testing.T) {
	openStore(t)
	if err := security.SetKeyHex("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"); err != nil {
		t.Fatalf("set key: %v", err)
	}
	t.Cleanup(func() { _ = security.SetKeyHex("") })

	room := makeRoom(t, "b1", "i1")
	m, err := Append(sender("b1", models.RoleBrand), room.RoomID, models.TypeText, textContent("confidential rate card"), "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if m.Content.Text != "confidential rate card" {
		t.Fatalf("append view not opened: %q", m.Content.Text)
	}

	raw, err := store.GetMessage(m.MessageID)
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if !raw.Sealed || raw.Content.Text == "confidential rate card" {
		t.Fatalf("stored record is not sealed")
	}

	page, err := List(room.RoomID, "i1", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Messages[0].Content.Text != "confidential rate card" {
		t.Fatalf("list view not opened: %q", page.Messages[0].Content.Text)
	}

	hits, err := Search("i1", nil, "rate card", 0, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("search over sealed text: got %d hits", len(hits))
	}
}

func TestEditHistorySealedAtRestOpenInViews(t *testing.T) {
	openStore(t)
	if err := security.SetKeyHex("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"); err != nil {
		t.Fatalf("set key: %v", err)
	}
	t.Cleanup(func() { _ = security.SetKeyHex("") })

	room := makeRoom(t, "b1", "i1")
	m, err := Append(sender("b1", models.RoleBrand), room.RoomID, models.TypeText, textContent("first wording"), "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	edited, err := Edit(m.MessageID, "b1", textContent("second wording"))
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if len(edited.EditHistory) != 1 || edited.EditHistory[0].PriorContent.Text != "first wording" {
		t.Fatalf("edit view history not opened: %+v", edited.EditHistory)
	}

	raw, err := store.GetMessage(m.MessageID)
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if !raw.Sealed || raw.EditHistory[0].PriorContent.Text == "first wording" {
		t.Fatalf("history stored in the clear: %+v", raw.EditHistory)
	}

	page, err := List(room.RoomID, "i1", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := page.Messages[0]
	if got.Content.Text != "second wording" || got.EditHistory[0].PriorContent.Text != "first wording" {
		t.Fatalf("list view history not opened: %+v", got)
	}
}
