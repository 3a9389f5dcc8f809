package testutil

import (
	"context"
	"net/http"
	"time"

	id "webdir/pkg/domain"
	"webdir/pkg/requestcontext"
)

// AsUser marks the request as authenticated, as the auth middleware would.
func AsUser(req *http.Request, userID id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// At pins the evaluation time used by services for the request.
func At(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// UserContext returns a background context carrying userID and a fixed clock.
func UserContext(userID id.UserID, now time.Time) context.Context {
	ctx := requestcontext.WithUserID(context.Background(), userID)
	return requestcontext.WithTime(ctx, now)
}
