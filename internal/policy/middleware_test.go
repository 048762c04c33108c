package policy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ecclesia-app/ecclesia-access/internal/shared"
)

func guardedRequest(t *testing.T, f *fixture, actor *shared.Actor) *httptest.ResponseRecorder {
	t.Helper()
	mw := Middleware{Service: f.service}
	handler := mw.Require("read", "financeiro")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if actor != nil {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequireRejectsAnonymous(t *testing.T) {
	f := newFixture(t)
	rec := guardedRequest(t, f, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdminBypasses(t *testing.T) {
	f := newFixture(t)
	rec := guardedRequest(t, f, &shared.Actor{AccountID: 1, Admin: true})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireRejectsAccountWithoutOperator(t *testing.T) {
	f := newFixture(t)
	rec := guardedRequest(t, f, &shared.Actor{AccountID: 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireConsultsDecisionPoint(t *testing.T) {
	f := newFixture(t)
	memberID := int64(1)

	rec := guardedRequest(t, f, &shared.Actor{AccountID: 1, MemberID: &memberID})
	assert.Equal(t, http.StatusForbidden, rec.Code, "unset grant denies")

	allowGrant(f)
	rec = guardedRequest(t, f, &shared.Actor{AccountID: 1, MemberID: &memberID})
	assert.Equal(t, http.StatusNoContent, rec.Code, "explicit allow admits")
}
