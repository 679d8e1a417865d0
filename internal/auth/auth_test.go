package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// freePort grabs an ephemeral port for the redirect listener. The port is
// released before use, which is racy in theory but fine for tests.
func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	return port
}

// fakeTokenEndpoint serves OAuth2 token responses, selecting behavior by
// grant type. A nil handler means "reject this grant with invalid_grant".
type fakeTokenEndpoint struct {
	acceptCode    bool
	acceptRefresh bool
}

func (f *fakeTokenEndpoint) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		grant := r.FormValue("grant_type")
		accepted := (grant == "authorization_code" && f.acceptCode) ||
			(grant == "refresh_token" && f.acceptRefresh)

		w.Header().Set("Content-Type", "application/json")

		if !accepted {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)

			return
		}

		fmt.Fprintf(w, `{"access_token":"at-%s","token_type":"Bearer","expires_in":3600,"refresh_token":"rt-%s"}`,
			grant, grant)
	}
}

// newTestAuthenticator wires an Authenticator at the fake token endpoint.
// display simulates the human: it follows the auth URL's state over to the
// local redirect listener using the given query values.
func newTestAuthenticator(t *testing.T, endpoint *fakeTokenEndpoint, redirect func(state string, port int)) *Authenticator {
	t.Helper()

	srv := httptest.NewServer(endpoint.handler())
	t.Cleanup(srv.Close)

	port := freePort(t)

	a := New("client-id", "client-secret", "common", port, nil, slog.Default())
	a.cfg.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/authorize",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	a.display = func(authURL string) {
		if redirect == nil {
			return
		}

		u, err := url.Parse(authURL)
		require.NoError(t, err)

		go redirect(u.Query().Get("state"), port)
	}

	return a
}

// hitRedirect performs the browser's redirect GET against the local
// listener, retrying briefly until the listener is up.
func hitRedirect(t *testing.T, port int, query url.Values) {
	t.Helper()

	target := fmt.Sprintf("http://127.0.0.1:%d/redirect?%s", port, query.Encode())

	for range 50 {
		resp, err := http.Get(target)
		if err == nil {
			resp.Body.Close()
			return
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Errorf("redirect listener on port %d never came up", port)
}

func TestLogin_Success(t *testing.T) {
	a := newTestAuthenticator(t,
		&fakeTokenEndpoint{acceptCode: true},
		func(state string, port int) {
			hitRedirect(t, port, url.Values{"state": {state}, "code": {"the-code"}})
		})

	s, err := a.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at-authorization_code", s.AccessToken)
	assert.Equal(t, "rt-authorization_code", s.RefreshToken)
	assert.False(t, s.Expired(time.Now()), "fresh session must not be expired")
}

func TestLogin_CodeMissing(t *testing.T) {
	a := newTestAuthenticator(t,
		&fakeTokenEndpoint{acceptCode: true},
		func(state string, port int) {
			hitRedirect(t, port, url.Values{"state": {state}})
		})

	_, err := a.Login(context.Background())
	assert.True(t, errors.Is(err, ErrCodeMissing))
}

func TestLogin_StateMismatch(t *testing.T) {
	a := newTestAuthenticator(t,
		&fakeTokenEndpoint{acceptCode: true},
		func(_ string, port int) {
			hitRedirect(t, port, url.Values{"state": {"wrong"}, "code": {"the-code"}})
		})

	_, err := a.Login(context.Background())
	assert.True(t, errors.Is(err, ErrRedirectCapture))
}

func TestLogin_ProviderDeniedAuthorization(t *testing.T) {
	a := newTestAuthenticator(t,
		&fakeTokenEndpoint{acceptCode: true},
		func(state string, port int) {
			hitRedirect(t, port, url.Values{
				"state":             {state},
				"error":             {"access_denied"},
				"error_description": {"user said no"},
			})
		})

	_, err := a.Login(context.Background())
	assert.True(t, errors.Is(err, ErrTokenExchange))
}

func TestLogin_ExchangeRejected(t *testing.T) {
	a := newTestAuthenticator(t,
		&fakeTokenEndpoint{}, // rejects every grant
		func(state string, port int) {
			hitRedirect(t, port, url.Values{"state": {state}, "code": {"bad-code"}})
		})

	_, err := a.Login(context.Background())
	assert.True(t, errors.Is(err, ErrTokenExchange))
}

func TestLogin_CanceledContext(t *testing.T) {
	a := newTestAuthenticator(t, &fakeTokenEndpoint{acceptCode: true}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := a.Login(ctx)
	assert.True(t, errors.Is(err, ErrRedirectCapture))
}

func TestRefresh_Success(t *testing.T) {
	a := newTestAuthenticator(t, &fakeTokenEndpoint{acceptRefresh: true}, nil)

	s, err := a.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "at-refresh_token", s.AccessToken)
	assert.Equal(t, "rt-refresh_token", s.RefreshToken)
}

// A rejected refresh token falls back to a full interactive login (the
// redirect dance) instead of propagating the rejection.
func TestRefresh_RejectionFallsBackToLogin(t *testing.T) {
	a := newTestAuthenticator(t,
		&fakeTokenEndpoint{acceptCode: true, acceptRefresh: false},
		func(state string, port int) {
			hitRedirect(t, port, url.Values{"state": {state}, "code": {"the-code"}})
		})

	s, err := a.Refresh(context.Background(), "revoked")
	require.NoError(t, err)
	assert.Equal(t, "at-authorization_code", s.AccessToken)
}

func TestRefresh_FallbackLoginAlsoFails(t *testing.T) {
	a := newTestAuthenticator(t, &fakeTokenEndpoint{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := a.Refresh(ctx, "revoked")
	assert.True(t, errors.Is(err, ErrRefreshFailed))
}

func TestRefresh_EmptyTokenGoesStraightToLogin(t *testing.T) {
	a := newTestAuthenticator(t,
		&fakeTokenEndpoint{acceptCode: true},
		func(state string, port int) {
			hitRedirect(t, port, url.Values{"state": {state}, "code": {"the-code"}})
		})

	s, err := a.Refresh(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "at-authorization_code", s.AccessToken)
}

func TestSessionFromToken_KeepsPreviousRefreshToken(t *testing.T) {
	tok := &oauth2.Token{AccessToken: "at", Expiry: time.Now().Add(time.Hour)}

	s := sessionFromToken(tok, "previous")
	assert.Equal(t, "previous", s.RefreshToken)

	tok.RefreshToken = "rotated"
	s = sessionFromToken(tok, "previous")
	assert.Equal(t, "rotated", s.RefreshToken)
}
