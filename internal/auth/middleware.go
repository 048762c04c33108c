package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

// ActingMemberHeader names the member a trusted caller acts for.
const ActingMemberHeader = "X-Acting-Member"

// Middleware authenticates service accounts via bearer API keys and
// places the resulting actor in the request context.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Authenticate rejects requests without a valid API key.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		account, err := m.Service.Verify(r.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			if m.Logger != nil {
				m.Logger.Info("rejected api key", slog.Any("error", err))
			}
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		actor := &shared.Actor{
			AccountID:   account.ID,
			AccountName: account.Name,
			Admin:       account.Admin,
		}
		if raw := r.Header.Get(ActingMemberHeader); raw != "" {
			if memberID, err := strconv.ParseInt(raw, 10, 64); err == nil && memberID > 0 {
				actor.MemberID = &memberID
			}
		}
		ctx := shared.ContextWithActor(r.Context(), actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
