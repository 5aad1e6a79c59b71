package models

import "time"

// OfferStatus is the negotiation state of an offer.
type OfferStatus string

const (
	OfferPending    OfferStatus = "pending"
	OfferAccepted   OfferStatus = "accepted"
	OfferDeclined   OfferStatus = "declined"
	OfferNegotiated OfferStatus = "negotiated"
	OfferCompleted  OfferStatus = "completed"
	OfferCancelled  OfferStatus = "cancelled"
)

// Respondable reports whether the influencer may still respond.
func (s OfferStatus) Respondable() bool {
	return s == OfferPending || s == OfferNegotiated
}

// ResponseType is the influencer's move on a respondable offer.
type ResponseType string

const (
	RespondAccept    ResponseType = "accept"
	RespondDecline   ResponseType = "decline"
	RespondNegotiate ResponseType = "negotiate"
)

// OfferDetails are the brand's proposed terms. They are immutable after
// creation; negotiation appends advisory history only.
type OfferDetails struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	Deadline     time.Time `json:"deadline"`
	Requirements []string  `json:"requirements,omitempty"`
	Deliverables []string  `json:"deliverables,omitempty"`
}

// NegotiationDetails is a counter-proposal attached to a negotiate
// response. It never rewrites the base OfferDetails.
type NegotiationDetails struct {
	ProposedAmount      float64   `json:"proposedAmount,omitempty"`
	ProposedDeadline    time.Time `json:"proposedDeadline,omitempty"`
	CounterRequirements []string  `json:"counterRequirements,omitempty"`
}

// OfferResponse is one entry in the preserved response history.
type OfferResponse struct {
	ResponseType       ResponseType        `json:"responseType"`
	Message            string              `json:"message,omitempty"`
	NegotiationDetails *NegotiationDetails `json:"negotiationDetails,omitempty"`
	RespondedAt        time.Time           `json:"respondedAt"`
}

// FinalTerms snapshots the agreed terms at acceptance time from the
// original OfferDetails.
type FinalTerms struct {
	AgreedAmount      float64   `json:"agreedAmount"`
	AgreedDeadline    time.Time `json:"agreedDeadline"`
	FinalRequirements []string  `json:"finalRequirements,omitempty"`
	FinalDeliverables []string  `json:"finalDeliverables,omitempty"`
}

// Offer is a structured negotiation proposal keyed by room+counterparty,
// rendered into the same room's message timeline.
type Offer struct {
	OfferID      string          `json:"offerId"`
	BrandID      string          `json:"brandId"`
	InfluencerID string          `json:"influencerId"`
	RoomID       string          `json:"roomId"`
	OfferDetails OfferDetails    `json:"offerDetails"`
	Status       OfferStatus     `json:"status"`
	Responses    []OfferResponse `json:"responses,omitempty"`
	FinalTerms   *FinalTerms     `json:"finalTerms,omitempty"`
	AcceptedAt   *time.Time      `json:"acceptedAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}
