package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"collabchat/pkg/errs"
	"collabchat/pkg/logger"
	"collabchat/pkg/models"
)

// Pebble-backed persistence for rooms, messages and offers.
//
// Key layout:
//
//	room:<roomID>:meta                          room record
//	room:<roomID>:msg:<created_ts>-<messageID>  current message state, log order
//	version:msg:<messageID>:<ts>-<seq>          append-only version history
//	latest:msg:<messageID>                      pointer to current state
//	participant:<pid>:room:<roomID>             room membership index
//	offer:<offerID>                             offer record
//	offeridx:brand:<pid>:<offerID>              offers created by a brand
//	offeridx:influencer:<pid>:<offerID>         offers addressed to an influencer
//
// The room log key embeds the message's creation timestamp, so iteration
// order is (createdAt, messageId) — the pagination tiebreak used by the
// read paths. Mutations rewrite the same log key and append a version.

var db *pebble.DB

var dbPath string

// seq disambiguates version keys written within the same nanosecond.
var seq uint64

// Open opens (or creates) the pebble database at path and keeps a global
// handle for the package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "err", err)
		return err
	}
	dbPath = path
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool { return db != nil }

func notOpened() error { return fmt.Errorf("pebble not opened; call store.Open first") }

func roomKey(roomID string) []byte {
	return []byte("room:" + roomID + ":meta")
}

// MsgLogKey builds the room-log key for a message. It is a pure function
// of (roomID, createdAt, messageID) so rewrites land on the same key.
func MsgLogKey(roomID string, createdAt time.Time, messageID string) []byte {
	return []byte(fmt.Sprintf("room:%s:msg:%020d-%s", roomID, createdAt.UTC().UnixNano(), messageID))
}

func versionKey(messageID string, ts int64, s uint64) []byte {
	return []byte(fmt.Sprintf("version:msg:%s:%020d-%06d", messageID, ts, s))
}

func latestKey(messageID string) []byte {
	return []byte("latest:msg:" + messageID)
}

func participantRoomKey(pid, roomID string) []byte {
	return []byte("participant:" + pid + ":room:" + roomID)
}

func offerKey(offerID string) []byte { return []byte("offer:" + offerID) }

// SaveRoom persists the room record and its participant index entries.
func SaveRoom(r models.Room) error {
	if db == nil {
		return notOpened()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	wb := db.NewBatch()
	if err := wb.Set(roomKey(r.RoomID), data, nil); err != nil {
		return err
	}
	for _, m := range r.Participants {
		if err := wb.Set(participantRoomKey(m.ParticipantID, r.RoomID), []byte(r.RoomID), nil); err != nil {
			return err
		}
	}
	if err := wb.Commit(pebble.Sync); err != nil {
		logger.Error("save_room_failed", "room", r.RoomID, "err", err)
		return err
	}
	return nil
}

// GetRoom returns the room record or errs.NotFound.
func GetRoom(roomID string) (models.Room, error) {
	var r models.Room
	if db == nil {
		return r, notOpened()
	}
	v, closer, err := db.Get(roomKey(roomID))
	if err == pebble.ErrNotFound {
		return r, errs.NotFound("room " + roomID + " not found")
	}
	if err != nil {
		return r, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &r); err != nil {
		return r, fmt.Errorf("invalid stored room: %w", err)
	}
	return r, nil
}

// ListRoomsFor returns every room the participant is indexed into, in no
// particular order. Callers sort.
func ListRoomsFor(pid string) ([]models.Room, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("participant:" + pid + ":room:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Room
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		roomID := string(iter.Value())
		r, err := GetRoom(roomID)
		if err != nil {
			logger.Warn("room_index_dangling", "participant", pid, "room", roomID)
			continue
		}
		out = append(out, r)
	}
	return out, iter.Error()
}

// SaveMessage writes the message's current state to its room-log key and
// the latest pointer, and appends one immutable version entry.
func SaveMessage(m models.Message) error {
	if db == nil {
		return notOpened()
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	ts := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&seq, 1)
	wb := db.NewBatch()
	if err := wb.Set(MsgLogKey(m.RoomID, m.CreatedAt, m.MessageID), data, nil); err != nil {
		return err
	}
	if err := wb.Set(versionKey(m.MessageID, ts, s), data, nil); err != nil {
		return err
	}
	if err := wb.Set(latestKey(m.MessageID), data, nil); err != nil {
		return err
	}
	if err := wb.Commit(pebble.Sync); err != nil {
		logger.Error("save_message_failed", "room", m.RoomID, "msg", m.MessageID, "err", err)
		return err
	}
	return nil
}

// GetMessage returns the current state of a message or errs.NotFound.
func GetMessage(messageID string) (models.Message, error) {
	var m models.Message
	if db == nil {
		return m, notOpened()
	}
	v, closer, err := db.Get(latestKey(messageID))
	if err == pebble.ErrNotFound {
		return m, errs.NotFound("message " + messageID + " not found")
	}
	if err != nil {
		return m, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &m); err != nil {
		return m, fmt.Errorf("invalid stored message: %w", err)
	}
	return m, nil
}

// ListRoomMessages returns the room's messages in log order (oldest
// first). limit <= 0 means no limit.
func ListRoomMessages(roomID string, limit int) ([]models.Message, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("room:" + roomID + ":msg:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("invalid stored message at %s: %w", iter.Key(), err)
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// ListRoomMessagesDesc walks the room log newest-first, skipping skip
// entries and returning at most limit (limit <= 0 means no limit). The
// log order is (createdAt, messageId), so pagination is stable while new
// messages arrive: they only prepend to the walk.
func ListRoomMessagesDesc(roomID string, skip, limit int) ([]models.Message, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("room:" + roomID + ":msg:")
	// upper bound: prefix with last byte bumped
	upper := append(append([]byte(nil), prefix...), 0xff)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	skipped := 0
	for valid := iter.Last(); valid; valid = iter.Prev() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if skipped < skip {
			skipped++
			continue
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("invalid stored message at %s: %w", iter.Key(), err)
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// ListMessageVersions returns every stored version of a message in write
// order, oldest first.
func ListMessageVersions(messageID string) ([]models.Message, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("version:msg:" + messageID + ":")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("invalid stored version at %s: %w", iter.Key(), err)
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// SaveOffer persists the offer record and its role index entries.
func SaveOffer(o models.Offer) error {
	if db == nil {
		return notOpened()
	}
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal offer: %w", err)
	}
	wb := db.NewBatch()
	if err := wb.Set(offerKey(o.OfferID), data, nil); err != nil {
		return err
	}
	if err := wb.Set([]byte("offeridx:brand:"+o.BrandID+":"+o.OfferID), []byte(o.OfferID), nil); err != nil {
		return err
	}
	if err := wb.Set([]byte("offeridx:influencer:"+o.InfluencerID+":"+o.OfferID), []byte(o.OfferID), nil); err != nil {
		return err
	}
	if err := wb.Commit(pebble.Sync); err != nil {
		logger.Error("save_offer_failed", "offer", o.OfferID, "err", err)
		return err
	}
	return nil
}

// GetOffer returns the offer record or errs.NotFound.
func GetOffer(offerID string) (models.Offer, error) {
	var o models.Offer
	if db == nil {
		return o, notOpened()
	}
	v, closer, err := db.Get(offerKey(offerID))
	if err == pebble.ErrNotFound {
		return o, errs.NotFound("offer " + offerID + " not found")
	}
	if err != nil {
		return o, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &o); err != nil {
		return o, fmt.Errorf("invalid stored offer: %w", err)
	}
	return o, nil
}

// ListOffersByIndex walks one of the offeridx namespaces ("brand" or
// "influencer") for a participant.
func ListOffersByIndex(side, pid string) ([]models.Offer, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("offeridx:" + side + ":" + pid + ":")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Offer
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		o, err := GetOffer(string(iter.Value()))
		if err != nil {
			logger.Warn("offer_index_dangling", "side", side, "participant", pid, "offer", string(iter.Value()))
			continue
		}
		out = append(out, o)
	}
	return out, iter.Error()
}

// ListAllOffers scans every offer record (admin listing).
func ListAllOffers() ([]models.Offer, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("offer:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Offer
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var o models.Offer
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, fmt.Errorf("invalid stored offer at %s: %w", iter.Key(), err)
		}
		out = append(out, o)
	}
	return out, iter.Error()
}
