package guard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	resp "github.com/Phatcm/event-management-system/internal/lib/api/response"
	jwtlib "github.com/Phatcm/event-management-system/internal/lib/jwt"
	"github.com/Phatcm/event-management-system/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "guard-test-secret"

type fakeBlacklist struct {
	revoked map[string]bool
	err     error
}

func (f *fakeBlacklist) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[jti], nil
}

func issueToken(t *testing.T, role models.Role, kind jwtlib.Kind) string {
	t.Helper()

	token, err := jwtlib.NewService(testSecret).Issue(models.User{
		UID:   uuid.New(),
		Email: "jdoe@example.com",
		Role:  role,
	}, time.Hour, kind)
	require.NoError(t, err)
	return token
}

// do runs one request through the guard and a probe handler that records
// whether the claims made it into the request context.
func do(
	t *testing.T,
	blacklist *fakeBlacklist,
	kind jwtlib.Kind,
	roles []models.Role,
	authHeader string,
) (*httptest.ResponseRecorder, *jwtlib.Claims) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard := New(log, jwtlib.NewService(testSecret), blacklist, kind, roles...)

	var seen *jwtlib.Claims
	handler := guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			seen = &claims
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) resp.Response {
	t.Helper()

	var body resp.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestGuard_AllowsValidToken(t *testing.T) {
	t.Parallel()

	token := issueToken(t, models.RoleUser, jwtlib.KindAccess)
	rec, seen := do(t, &fakeBlacklist{}, jwtlib.KindAccess, []models.Role{models.RoleAdmin, models.RoleUser}, "Bearer "+token)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen, "claims must be stored for the handler")
	assert.Equal(t, models.RoleUser, seen.User.Role)
	assert.Equal(t, "jdoe@example.com", seen.User.Email)
}

func TestGuard_MissingHeader(t *testing.T) {
	t.Parallel()

	rec, seen := do(t, &fakeBlacklist{}, jwtlib.KindAccess, nil, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, seen)
	assert.Equal(t, resp.KindAccessDenied, decodeError(t, rec).ErrorKind)
}

func TestGuard_NonBearerHeader(t *testing.T) {
	t.Parallel()

	rec, _ := do(t, &fakeBlacklist{}, jwtlib.KindAccess, nil, "Basic dXNlcjpwYXNz")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuard_GarbageToken(t *testing.T) {
	t.Parallel()

	rec, seen := do(t, &fakeBlacklist{}, jwtlib.KindAccess, nil, "Bearer not.a.token")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, seen)
	body := decodeError(t, rec)
	assert.Equal(t, resp.KindAccessDenied, body.ErrorKind)
	assert.Equal(t, "invalid or expired token", body.Error)
}

func TestGuard_RejectsWrongKind(t *testing.T) {
	t.Parallel()

	refresh := issueToken(t, models.RoleUser, jwtlib.KindRefresh)
	rec, _ := do(t, &fakeBlacklist{}, jwtlib.KindAccess, nil, "Bearer "+refresh)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "please provide a valid access token", decodeError(t, rec).Error)

	access := issueToken(t, models.RoleUser, jwtlib.KindAccess)
	rec, _ = do(t, &fakeBlacklist{}, jwtlib.KindRefresh, nil, "Bearer "+access)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "please provide a valid refresh token", decodeError(t, rec).Error)
}

func TestGuard_RevokedToken(t *testing.T) {
	t.Parallel()

	token := issueToken(t, models.RoleUser, jwtlib.KindAccess)

	claims, err := jwtlib.NewService(testSecret).Parse(token)
	require.NoError(t, err)

	blacklist := &fakeBlacklist{revoked: map[string]bool{claims.JTI: true}}
	rec, seen := do(t, blacklist, jwtlib.KindAccess, nil, "Bearer "+token)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, seen)
	assert.Equal(t, "this token has been revoked, please acquire a new token", decodeError(t, rec).Error)
}

func TestGuard_RevocationCheckFailure(t *testing.T) {
	t.Parallel()

	token := issueToken(t, models.RoleUser, jwtlib.KindAccess)
	blacklist := &fakeBlacklist{err: errors.New("redis down")}

	rec, _ := do(t, blacklist, jwtlib.KindAccess, nil, "Bearer "+token)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, resp.KindInfrastructure, decodeError(t, rec).ErrorKind)
}

func TestGuard_RoleAllowSet(t *testing.T) {
	t.Parallel()

	userToken := issueToken(t, models.RoleUser, jwtlib.KindAccess)

	rec, _ := do(t, &fakeBlacklist{}, jwtlib.KindAccess, []models.Role{models.RoleAdmin, models.RoleOrganizer}, "Bearer "+userToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "you are not allowed to perform this", decodeError(t, rec).Error)

	adminToken := issueToken(t, models.RoleAdmin, jwtlib.KindAccess)
	rec, _ = do(t, &fakeBlacklist{}, jwtlib.KindAccess, []models.Role{models.RoleAdmin, models.RoleOrganizer}, "Bearer "+adminToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// An empty allow-set admits any authenticated role.
func TestGuard_EmptyRoleSet(t *testing.T) {
	t.Parallel()

	token := issueToken(t, models.RoleUser, jwtlib.KindAccess)
	rec, _ := do(t, &fakeBlacklist{}, jwtlib.KindAccess, nil, "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
}
