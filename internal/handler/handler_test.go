package handler_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/identity-hub/internal/auth"
	"github.com/sakif/identity-hub/internal/handler"
	"github.com/sakif/identity-hub/internal/linking"
	"github.com/sakif/identity-hub/internal/nostr"
	"github.com/sakif/identity-hub/internal/repository/sqlite"
	"github.com/sakif/identity-hub/internal/service"
)

// testEnv wires the real stack — in-memory sqlite, real services, real
// middleware — so handler tests cover the same path production requests
// take. Only the GitHub provider and the signer are stand-ins.
type testEnv struct {
	db          *sqlite.DB
	tokens      *auth.TokenService
	authSvc     *service.AuthService
	identitySvc *service.IdentityService
	authH       *handler.AuthHandler
	profileH    *handler.ProfileHandler
}

func newTestEnv(t *testing.T, signer nostr.Capability) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-key-for-handler-tests")
	require.NoError(t, err)

	builder := linking.NewBuilder(linking.ProviderConfig{
		ClientID:    "test-client-id",
		CallbackURL: "https://app.example.com/auth/github/callback",
	})
	github := auth.NewGitHubProvider("test-client-id", "test-secret", "https://app.example.com/auth/github/callback")

	authSvc := service.NewAuthService(db, db, tokens, auth.NewPasswordServiceForTest(4), logger)
	identitySvc := service.NewIdentityService(db, db, builder, nostr.NewCoordinator(logger), signer, logger)

	return &testEnv{
		db:          db,
		tokens:      tokens,
		authSvc:     authSvc,
		identitySvc: identitySvc,
		authH:       handler.NewAuthHandler(github, authSvc, identitySvc, logger),
		profileH:    handler.NewProfileHandler(identitySvc, logger),
	}
}

// login creates an anonymous account and returns its ID plus a session
// cookie ready to attach to requests.
func (e *testEnv) login(t *testing.T) (string, *http.Cookie) {
	t.Helper()
	result, err := e.authSvc.LoginAnonymous(context.Background())
	require.NoError(t, err)
	return result.Account.ID, &http.Cookie{Name: "token", Value: result.Token}
}

// do runs an authenticated request through the RequireAuth middleware
// into the given handler.
func (e *testEnv) do(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	auth.RequireAuth(e.tokens)(h).ServeHTTP(rr, req)
	return rr
}
