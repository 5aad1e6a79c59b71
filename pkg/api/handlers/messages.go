package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"collabchat/pkg/messages"
	"collabchat/pkg/models"
	"collabchat/pkg/utils"
)

// RegisterMessages registers the message store endpoints.
func RegisterMessages(r *mux.Router) {
	r.HandleFunc("/rooms/{id}/messages", appendMessage).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{id}/messages", listMessages).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id}/read", markRead).Methods(http.MethodPost)

	r.HandleFunc("/messages/search", searchMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages/unread-count", unreadCount).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}", editMessage).Methods(http.MethodPut)
	r.HandleFunc("/messages/{id}", deleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/messages/{id}/reactions", reactToMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}/forward", forwardMessage).Methods(http.MethodPost)
}

func appendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var body struct {
		MessageType models.MessageType `json:"messageType"`
		Content     models.Content     `json:"content"`
		ReplyTo     string             `json:"replyTo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.MessageType == "" {
		body.MessageType = models.TypeText
	}
	m, err := messages.Append(id.Sender(), mux.Vars(r)["id"], body.MessageType, body.Content, body.ReplyTo)
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, m)
}

func listMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	page, err := messages.List(mux.Vars(r)["id"], id.ParticipantID, queryInt(r, "skip", 0), queryInt(r, "limit", 50))
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, page)
}

func markRead(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var body struct {
		MessageIDs []string `json:"messageIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	n, err := messages.MarkRead(mux.Vars(r)["id"], id.ParticipantID, body.MessageIDs)
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]int{"modifiedCount": n})
}

func editMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var body struct {
		Content models.Content `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	m, err := messages.Edit(mux.Vars(r)["id"], id.ParticipantID, body.Content)
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

func deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	scope := messages.DeleteScope(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = messages.ScopeSelf
	}
	m, err := messages.Delete(mux.Vars(r)["id"], id.Ref(), scope)
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

func reactToMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var body struct {
		Kind models.ReactionKind `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	m, err := messages.React(mux.Vars(r)["id"], id.ParticipantID, body.Kind)
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

func forwardMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var body struct {
		RoomIDs []string `json:"roomIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	created, err := messages.Forward(mux.Vars(r)["id"], id.Sender(), body.RoomIDs)
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"forwarded": created})
}

func searchMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var roomIDs []string
	if v := r.URL.Query().Get("roomIds"); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				roomIDs = append(roomIDs, s)
			}
		}
	}
	hits, err := messages.Search(id.ParticipantID, roomIDs, r.URL.Query().Get("q"), queryInt(r, "skip", 0), queryInt(r, "limit", 50))
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"results": hits})
}

func unreadCount(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	n, err := messages.UnreadCount(id.ParticipantID)
	if err != nil {
		utils.JSONErrorFrom(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]int{"unreadCount": n})
}
