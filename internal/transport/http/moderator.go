package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	id "webdir/pkg/domain"
	"webdir/pkg/platform/httputil"
	"webdir/pkg/requestcontext"
)

type ModeratorChecker interface {
	RequireModerator(ctx context.Context, userID id.UserID) error
}

// RequireModerator admits only authenticated moderators. It must run after
// the auth middleware.
func RequireModerator(checker ModeratorChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if err := checker.RequireModerator(ctx, requestcontext.UserID(ctx)); err != nil {
				logger.WarnContext(ctx, "admin route denied",
					"path", r.URL.Path,
					"user_id", requestcontext.UserID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
