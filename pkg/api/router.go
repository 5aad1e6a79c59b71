package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"collabchat/pkg/api/handlers"
	"collabchat/pkg/auth"
)

// Router assembles the versioned REST surface. Every /v1 route requires a
// resolved caller identity; the websocket and operational endpoints are
// mounted outside this router by the app.
func Router(limiter *auth.LimiterPool) http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(auth.Middleware(limiter))

	handlers.RegisterRooms(v1)
	handlers.RegisterMessages(v1)
	handlers.RegisterOffers(v1)
	return r
}
