package shared

import (
	"net/http"
	"strconv"
)

// UserIDHeader carries the authenticated user resolved by the gateway in
// front of this service. Authentication itself happens upstream.
const UserIDHeader = "X-User-ID"

// UserID extracts the acting user from the request. Zero means unknown.
func UserID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get(UserIDHeader), 10, 64)
	return id
}
