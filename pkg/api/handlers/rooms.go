package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"collabchat/pkg/models"
	"collabchat/pkg/rooms"
	"collabchat/pkg/utils"
)

// RegisterRooms registers the room directory endpoints.
func RegisterRooms(r *mux.Router) {
	r.HandleFunc("/rooms", getOrCreateRoom).Methods(http.MethodPost)
	r.HandleFunc("/rooms", listRooms).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id}", getRoom).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id}/participants", addParticipant).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{id}/status", setRoomStatus).Methods(http.MethodPut)
}

func getOrCreateRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var body struct {
		ParticipantIDs []string      `json:"participantIds"`
		Roles          []models.Role `json:"roles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	room, err := rooms.GetOrCreate(id.Ref(), body.ParticipantIDs, body.Roles)
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, room)
}

func listRooms(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	rs, err := rooms.ListFor(id.ParticipantID)
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"rooms": rs})
}

func getRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	room, err := rooms.Get(mux.Vars(r)["id"])
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	if !room.HasParticipant(id.ParticipantID) && id.Role != models.RoleAdmin {
		utils.JSONError(w, http.StatusForbidden, "not a member of this room")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, room)
}

func addParticipant(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var body struct {
		ParticipantID string      `json:"participantId"`
		Role          models.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	room, err := rooms.AddParticipant(mux.Vars(r)["id"], id.Ref(), models.NewParticipantRef(body.ParticipantID, body.Role))
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, room)
}

func setRoomStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var body struct {
		Status models.RoomStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	room, err := rooms.SetStatus(mux.Vars(r)["id"], id.Ref(), body.Status)
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, room)
}
