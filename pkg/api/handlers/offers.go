package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"collabchat/pkg/models"
	"collabchat/pkg/offers"
	"collabchat/pkg/utils"
)

// RegisterOffers registers the offer negotiation endpoints.
func RegisterOffers(r *mux.Router) {
	r.HandleFunc("/offers", createOffer).Methods(http.MethodPost)
	r.HandleFunc("/offers", listOffers).Methods(http.MethodGet)
	r.HandleFunc("/offers/{id}", getOffer).Methods(http.MethodGet)
	r.HandleFunc("/offers/{id}/respond", respondToOffer).Methods(http.MethodPost)
	r.HandleFunc("/offers/{id}/status", updateOfferStatus).Methods(http.MethodPut)
}

func createOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var body struct {
		InfluencerID string              `json:"influencerId"`
		OfferDetails models.OfferDetails `json:"offerDetails"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := offers.Create(id.Sender(), body.InfluencerID, body.OfferDetails)
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, o)
}

func listOffers(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	status := models.OfferStatus(r.URL.Query().Get("status"))
	out, err := offers.ListFor(id.Ref(), status, queryInt(r, "skip", 0), queryInt(r, "limit", 50))
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"offers": out})
}

func getOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	o, err := offers.Get(mux.Vars(r)["id"], id.Ref())
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, o)
}

func respondToOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var body struct {
		ResponseType       models.ResponseType        `json:"responseType"`
		Message            string                     `json:"message"`
		NegotiationDetails *models.NegotiationDetails `json:"negotiationDetails"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := offers.Respond(mux.Vars(r)["id"], id.Sender(), body.ResponseType, body.Message, body.NegotiationDetails)
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, o)
}

func updateOfferStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var body struct {
		Status models.OfferStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := offers.UpdateStatus(mux.Vars(r)["id"], id.Ref(), body.Status)
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, o)
}
