package policy

import (
	"net/http"

	"log/slog"

	"github.com/ecclesia-app/ecclesia-access/internal/catalog"
	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

// Middleware gates admin endpoints through the decision point itself.
// The governance API eats its own policy: an operator needs the same
// grants as any other consumer of the model.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require ensures the acting member holds the capability. Service
// accounts flagged admin bypass the check; they exist for bootstrap
// and machine-to-machine calls that carry no operator.
func (m Middleware) Require(action, subject string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := shared.ActorFromContext(r.Context())
			if actor == nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if actor.Admin {
				next.ServeHTTP(w, r)
				return
			}
			if actor.MemberID == nil {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			decision := m.Service.Decide(r.Context(), Request{
				MemberID: *actor.MemberID,
				Action:   catalog.Action(action),
				Subject:  subject,
			})
			if !decision.Allowed {
				if m.Logger != nil {
					m.Logger.Info("admin request denied",
						slog.Int64("member_id", *actor.MemberID),
						slog.String("action", action),
						slog.String("subject", subject),
						slog.String("decided_by", decision.DecidedBy))
				}
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
