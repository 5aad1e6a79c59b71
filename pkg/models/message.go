package models

import (
	"fmt"
	"time"
)

// MessageType tags the content variant a message carries.
type MessageType string

const (
	TypeText        MessageType = "text"
	TypeMedia       MessageType = "media"
	TypeVoice       MessageType = "voice"
	TypeOffer       MessageType = "offer"
	TypeAcceptance  MessageType = "acceptance"
	TypeDecline     MessageType = "decline"
	TypeNegotiation MessageType = "negotiation"
	TypeSystem      MessageType = "system"
	TypeLocation    MessageType = "location"
	TypeContact     MessageType = "contact"
	TypeForwarded   MessageType = "forwarded"
	TypePoll        MessageType = "poll"
	TypeSticker     MessageType = "sticker"
	TypeGif         MessageType = "gif"
)

// MessageStatus is the persisted delivery state. sent -> delivered -> read
// is monotonic per reader, tracked per-reader via ReadBy.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// ReactionKind is the closed set of reactions a participant may place.
type ReactionKind string

const (
	ReactLike       ReactionKind = "like"
	ReactLove       ReactionKind = "love"
	ReactLaugh      ReactionKind = "laugh"
	ReactAngry      ReactionKind = "angry"
	ReactSad        ReactionKind = "sad"
	ReactWow        ReactionKind = "wow"
	ReactCare       ReactionKind = "care"
	ReactThumbsUp   ReactionKind = "thumbs_up"
	ReactThumbsDown ReactionKind = "thumbs_down"
	ReactHeart      ReactionKind = "heart"
)

// ValidReaction reports whether k is a known reaction kind.
func ValidReaction(k ReactionKind) bool {
	switch k {
	case ReactLike, ReactLove, ReactLaugh, ReactAngry, ReactSad,
		ReactWow, ReactCare, ReactThumbsUp, ReactThumbsDown, ReactHeart:
		return true
	}
	return false
}

// MediaRef is a stored reference to an uploaded file. The upload pipeline
// is an external collaborator; the core only stores and indexes these.
type MediaRef struct {
	Filename string `json:"filename"`
	Mimetype string `json:"mimetype"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// OfferContent is the payload of an offer message.
type OfferContent struct {
	Amount       float64   `json:"amount"`
	Description  string    `json:"description"`
	Deadline     time.Time `json:"deadline"`
	Requirements []string  `json:"requirements,omitempty"`
}

// VoiceContent is the payload of a voice message.
type VoiceContent struct {
	Filename string  `json:"filename"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration,omitempty"`
	Size     int64   `json:"size,omitempty"`
}

// LocationContent is the payload of a location message.
type LocationContent struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
	PlaceName string  `json:"placeName,omitempty"`
}

// ContactContent is the payload of a contact message.
type ContactContent struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// ForwardedContent carries forwarding provenance alongside the original
// content copied into the new message.
type ForwardedContent struct {
	OriginalSender    string    `json:"originalSender"`
	OriginalMessageID string    `json:"originalMessageId"`
	OriginalRoomID    string    `json:"originalRoomId"`
	ForwardedAt       time.Time `json:"forwardedAt"`
}

// Content is the tagged union of message payloads. Exactly the variant
// fields relevant to the owning message's MessageType are populated; the
// rest stay nil/zero. Validate enforces the pairing.
type Content struct {
	Text      string            `json:"text,omitempty"`
	Offer     *OfferContent     `json:"offer,omitempty"`
	Media     []MediaRef        `json:"media,omitempty"`
	Voice     *VoiceContent     `json:"voice,omitempty"`
	Location  *LocationContent  `json:"location,omitempty"`
	Contact   *ContactContent   `json:"contact,omitempty"`
	Forwarded *ForwardedContent `json:"forwarded,omitempty"`
}

// Validate checks that the content shape matches the message type.
func (c Content) Validate(t MessageType) error {
	switch t {
	case TypeText, TypeSystem, TypeSticker, TypeGif, TypePoll,
		TypeAcceptance, TypeDecline, TypeNegotiation:
		if c.Text == "" {
			return fmt.Errorf("%s message requires text", t)
		}
	case TypeOffer:
		if c.Offer == nil {
			return fmt.Errorf("offer message requires offer content")
		}
	case TypeMedia:
		if len(c.Media) == 0 {
			return fmt.Errorf("media message requires at least one attachment")
		}
	case TypeVoice:
		if c.Voice == nil {
			return fmt.Errorf("voice message requires voice content")
		}
	case TypeLocation:
		if c.Location == nil {
			return fmt.Errorf("location message requires location content")
		}
	case TypeContact:
		if c.Contact == nil {
			return fmt.Errorf("contact message requires contact content")
		}
	case TypeForwarded:
		if c.Forwarded == nil {
			return fmt.Errorf("forwarded message requires forwarding metadata")
		}
	default:
		return fmt.Errorf("unknown message type %q", t)
	}
	return nil
}

// Reaction is one participant's active reaction on a message. At most one
// per participant; an upsert replaces the prior entry.
type Reaction struct {
	ParticipantID string       `json:"participantId"`
	Kind          ReactionKind `json:"kind"`
	At            time.Time    `json:"at"`
}

// ReadReceipt records that a participant has read a message.
type ReadReceipt struct {
	ParticipantID string    `json:"participantId"`
	At            time.Time `json:"at"`
}

// EditEntry holds one superseded content version.
type EditEntry struct {
	PriorContent Content   `json:"priorContent"`
	EditedAt     time.Time `json:"editedAt"`
	EditedBy     string    `json:"editedBy"`
}

// Message is one append-history communication record in a room. It is
// mutated only via edit, reaction upsert, read-receipt append, or logical
// delete; every mutation appends a new stored version.
type Message struct {
	MessageID   string        `json:"messageId"`
	RoomID      string        `json:"roomId"`
	Sender      Sender        `json:"sender"`
	MessageType MessageType   `json:"messageType"`
	Content     Content       `json:"content"`
	Status      MessageStatus `json:"status"`
	ReplyTo     string        `json:"replyTo,omitempty"`
	Reactions   []Reaction    `json:"reactions,omitempty"`
	ReadBy      []ReadReceipt `json:"readBy,omitempty"`
	IsEdited    bool          `json:"isEdited,omitempty"`
	EditHistory []EditEntry   `json:"editHistory,omitempty"`
	// IsDeleted marks a global tombstone: content is irreversibly
	// replaced with the placeholder. DeletedFor is an orthogonal
	// per-viewer hide and does not affect other viewers.
	IsDeleted  bool     `json:"isDeleted,omitempty"`
	DeletedFor []string `json:"deletedFor,omitempty"`
	// Sealed marks that Content.Text holds ciphertext at rest.
	Sealed    bool      `json:"sealed,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DeletedPlaceholder replaces content on delete-for-everyone.
const DeletedPlaceholder = "This message was deleted"

// HiddenFor reports whether the message is hidden from pid via
// delete-for-self.
func (m *Message) HiddenFor(pid string) bool {
	for _, id := range m.DeletedFor {
		if id == pid {
			return true
		}
	}
	return false
}

// ReadByParticipant reports whether pid already has a read receipt.
func (m *Message) ReadByParticipant(pid string) bool {
	for _, r := range m.ReadBy {
		if r.ParticipantID == pid {
			return true
		}
	}
	return false
}
