package handlers

import (
	"net/http"
	"strconv"

	"collabchat/pkg/auth"
	"collabchat/pkg/utils"
)

// caller returns the identity injected by the auth middleware. The
// middleware guards every route here, so absence is a wiring bug.
func caller(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		utils.JSONError(w, http.StatusForbidden, "caller identity missing")
		return auth.Identity{}, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
