package offers

import (
	"fmt"
	"sort"
	"time"

	"collabchat/pkg/errs"
	"collabchat/pkg/logger"
	"collabchat/pkg/messages"
	"collabchat/pkg/models"
	"collabchat/pkg/rooms"
	"collabchat/pkg/store"
	"collabchat/pkg/telemetry"
	"collabchat/pkg/utils"
	"collabchat/pkg/validation"
)

// Offer lifecycle: pending -> accepted|declined|negotiated, negotiated
// stays respondable, accepted -> completed, any non-terminal -> cancelled.
// Every transition is rendered into the shared room's message timeline so
// the negotiation reads as part of the conversation.

// locks serializes responses per offer; of two concurrent responses the
// loser sees the advanced status and gets OFFER_NOT_RESPONDABLE.
var locks = utils.NewLockRing(32)

func systemSender() models.Sender {
	return models.Sender{
		ParticipantRef: models.ParticipantRef{
			ParticipantID:   "system",
			ParticipantType: models.ParticipantPrimary,
			Role:            models.RoleAdmin,
		},
		DisplayName: "System",
	}
}

// Create opens a new offer from a brand to an influencer. The shared
// direct room is resolved (created if absent) and an offer-typed message
// carrying the terms is appended to it.
func Create(brand models.Sender, influencerID string, details models.OfferDetails) (models.Offer, error) {
	if brand.Role != models.RoleBrand {
		return models.Offer{}, errs.Forbidden("only a brand can create an offer")
	}
	if err := validation.OfferInput(influencerID, details); err != nil {
		return models.Offer{}, err
	}
	room, err := rooms.GetOrCreate(brand.ParticipantRef,
		[]string{brand.ParticipantID, influencerID},
		[]models.Role{models.RoleBrand, models.RoleInfluencer})
	if err != nil {
		return models.Offer{}, err
	}

	now := time.Now().UTC()
	o := models.Offer{
		OfferID:      utils.GenOfferID(),
		BrandID:      brand.ParticipantID,
		InfluencerID: influencerID,
		RoomID:       room.RoomID,
		OfferDetails: details,
		Status:       models.OfferPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.SaveOffer(o); err != nil {
		return models.Offer{}, err
	}
	telemetry.OffersCreated.Inc()
	logger.Info("offer_created", "offer", o.OfferID, "brand", o.BrandID, "influencer", o.InfluencerID, "room", o.RoomID)

	_, err = messages.Append(brand, room.RoomID, models.TypeOffer, models.Content{
		Text: details.Title,
		Offer: &models.OfferContent{
			Amount:       details.Amount,
			Description:  details.Description,
			Deadline:     details.Deadline,
			Requirements: details.Requirements,
		},
	}, "")
	if err != nil {
		logger.Warn("offer_message_failed", "offer", o.OfferID, "err", err)
	}
	return o, nil
}

// Respond records the influencer's move on a respondable offer. Accepting
// snapshots final terms from the original details; negotiating keeps the
// offer respondable with the counter-proposal appended to history.
func Respond(offerID string, influencer models.Sender, rt models.ResponseType, note string, nd *models.NegotiationDetails) (models.Offer, error) {
	if err := validation.ResponseInput(rt); err != nil {
		return models.Offer{}, err
	}
	unlock := locks.Lock(offerID)
	defer unlock()

	o, err := store.GetOffer(offerID)
	if err != nil {
		return models.Offer{}, err
	}
	if influencer.ParticipantID != o.InfluencerID {
		return models.Offer{}, errs.Forbidden("only the offer's influencer can respond")
	}
	if !o.Status.Respondable() {
		return models.Offer{}, errs.NotRespondable(fmt.Sprintf("offer %s is %s and cannot be responded to", offerID, o.Status))
	}

	now := time.Now().UTC()
	resp := models.OfferResponse{ResponseType: rt, Message: note, RespondedAt: now}
	var msgType models.MessageType
	var msgText string

	switch rt {
	case models.RespondAccept:
		o.Status = models.OfferAccepted
		o.AcceptedAt = &now
		// terms are agreed as originally proposed; negotiation history
		// is advisory and never rewrites them
		o.FinalTerms = &models.FinalTerms{
			AgreedAmount:      o.OfferDetails.Amount,
			AgreedDeadline:    o.OfferDetails.Deadline,
			FinalRequirements: o.OfferDetails.Requirements,
			FinalDeliverables: o.OfferDetails.Deliverables,
		}
		msgType = models.TypeAcceptance
		msgText = "Offer accepted: " + o.OfferDetails.Title
	case models.RespondDecline:
		o.Status = models.OfferDeclined
		msgType = models.TypeDecline
		msgText = "Offer declined: " + o.OfferDetails.Title
	case models.RespondNegotiate:
		if nd == nil {
			return models.Offer{}, errs.Validation("negotiate response requires negotiation details")
		}
		o.Status = models.OfferNegotiated
		resp.NegotiationDetails = nd
		msgType = models.TypeNegotiation
		msgText = "Counter-proposal on: " + o.OfferDetails.Title
	}

	o.Responses = append(o.Responses, resp)
	o.UpdatedAt = now
	if err := store.SaveOffer(o); err != nil {
		return models.Offer{}, err
	}
	telemetry.OfferResponses.WithLabelValues(string(rt)).Inc()
	logger.Info("offer_response", "offer", offerID, "type", string(rt), "status", string(o.Status))

	if _, err := messages.Append(influencer, o.RoomID, msgType, models.Content{Text: msgText}, ""); err != nil {
		logger.Warn("offer_message_failed", "offer", offerID, "err", err)
	}
	return o, nil
}

// UpdateStatus moves an offer to completed or cancelled. Completing
// requires an accepted offer; cancelling any non-terminal one. Only the
// owning brand or an admin may call it. A system message is appended to
// the room.
func UpdateStatus(offerID string, caller models.ParticipantRef, target models.OfferStatus) (models.Offer, error) {
	if target != models.OfferCompleted && target != models.OfferCancelled {
		return models.Offer{}, errs.Validation("status must be completed or cancelled")
	}
	unlock := locks.Lock(offerID)
	defer unlock()

	o, err := store.GetOffer(offerID)
	if err != nil {
		return models.Offer{}, err
	}
	if caller.ParticipantID != o.BrandID && caller.Role != models.RoleAdmin {
		return models.Offer{}, errs.Forbidden("only the offer's brand or an admin can update its status")
	}

	now := time.Now().UTC()
	switch target {
	case models.OfferCompleted:
		if o.Status != models.OfferAccepted {
			return models.Offer{}, errs.Conflict(fmt.Sprintf("offer %s is %s; only accepted offers can be completed", offerID, o.Status))
		}
		o.Status = models.OfferCompleted
		o.CompletedAt = &now
	case models.OfferCancelled:
		switch o.Status {
		case models.OfferCompleted, models.OfferCancelled, models.OfferDeclined:
			// declined is terminal like the other two
			return models.Offer{}, errs.Conflict(fmt.Sprintf("offer %s is %s and cannot be cancelled", offerID, o.Status))
		}
		o.Status = models.OfferCancelled
	}
	o.UpdatedAt = now
	if err := store.SaveOffer(o); err != nil {
		return models.Offer{}, err
	}
	logger.Info("offer_status_updated", "offer", offerID, "status", string(target), "by", caller.ParticipantID)

	text := "Offer has been completed"
	if target == models.OfferCancelled {
		text = "Offer has been cancelled"
	}
	if _, err := messages.AppendSystem(systemSender(), o.RoomID, models.TypeSystem, models.Content{Text: text}); err != nil {
		logger.Warn("offer_message_failed", "offer", offerID, "err", err)
	}
	return o, nil
}

// Get returns the offer if the caller is a party to it (or an admin).
func Get(offerID string, caller models.ParticipantRef) (models.Offer, error) {
	o, err := store.GetOffer(offerID)
	if err != nil {
		return models.Offer{}, err
	}
	if caller.ParticipantID != o.BrandID && caller.ParticipantID != o.InfluencerID && caller.Role != models.RoleAdmin {
		return models.Offer{}, errs.Forbidden("participant is not a party to this offer")
	}
	return o, nil
}

// ListFor returns the caller's offers on their side of the table, newest
// first, optionally filtered by status, with skip/limit pagination.
// Admins see every offer on the platform.
func ListFor(caller models.ParticipantRef, status models.OfferStatus, skip, limit int) ([]models.Offer, error) {
	var all []models.Offer
	var err error
	switch caller.Role {
	case models.RoleBrand:
		all, err = store.ListOffersByIndex("brand", caller.ParticipantID)
	case models.RoleInfluencer:
		all, err = store.ListOffersByIndex("influencer", caller.ParticipantID)
	case models.RoleAdmin:
		all, err = store.ListAllOffers()
	default:
		return nil, errs.Forbidden("only brands, influencers and admins hold offers")
	}
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, o := range all {
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].OfferID < out[j].OfferID
	})
	if limit <= 0 {
		limit = 50
	}
	if skip >= len(out) {
		return []models.Offer{}, nil
	}
	out = out[skip:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
