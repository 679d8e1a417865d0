// Package auth performs the OAuth2 exchanges against Microsoft identity:
// the interactive authorization-code login (with a transient local listener
// capturing the redirect) and the non-interactive refresh-token exchange.
// Refresh failure falls back to a fresh interactive login, since an expired
// or revoked refresh token is recoverable by re-authenticating.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/Chikage0o0/onelist/internal/session"
)

// Sentinel errors for the login state machine. Check with errors.Is.
var (
	ErrRedirectCapture = errors.New("auth: redirect capture failed")
	ErrCodeMissing     = errors.New("auth: redirect carried no authorization code")
	ErrTokenExchange   = errors.New("auth: token exchange failed")
	ErrRefreshFailed   = errors.New("auth: refresh failed and re-login failed")
)

// Delegated Graph permissions requested at login. offline_access makes the
// provider issue a refresh token.
var scopes = []string{
	"offline_access",
	"Files.Read.All",
	"User.Read",
}

// Login flow timing.
const (
	// redirectWait bounds how long Login waits for the browser redirect
	// before giving up with ErrRedirectCapture.
	redirectWait = 5 * time.Minute

	// shutdownTimeout is how long the callback server gets to drain.
	shutdownTimeout = 5 * time.Second

	stateTokenBytes = 16
)

// DefaultRedirectPort matches the redirect URI registered for the app.
const DefaultRedirectPort = 10080

// redirectPath is the path component of the registered redirect URI.
const redirectPath = "/redirect"

// Authenticator holds the fixed credentials and endpoints for one app
// registration. Immutable after construction; safe for concurrent use.
type Authenticator struct {
	cfg    *oauth2.Config
	port   int
	logger *slog.Logger

	// display is called with the authorization URL during interactive
	// login; the CLI prints it for the human to open.
	display func(authURL string)
}

// New creates an Authenticator for the given app registration. tenant
// selects the Azure AD authority ("common", "organizations", "consumers",
// or a tenant ID). A non-positive port falls back to DefaultRedirectPort.
func New(clientID, clientSecret, tenant string, port int, display func(string), logger *slog.Logger) *Authenticator {
	if port <= 0 {
		port = DefaultRedirectPort
	}

	if logger == nil {
		logger = slog.Default()
	}

	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       scopes,
		Endpoint:     microsoft.AzureADEndpoint(tenant),
		RedirectURL:  fmt.Sprintf("http://localhost:%d%s", port, redirectPath),
	}

	return &Authenticator{
		cfg:     cfg,
		port:    port,
		logger:  logger,
		display: display,
	}
}

// callbackResult carries the authorization code or error out of the
// redirect handler.
type callbackResult struct {
	code string
	err  error
}

// Login runs the interactive authorization-code flow: bind the local
// redirect listener, hand the authorization URL to the human, wait for
// exactly one redirect, exchange the captured code for a session.
func (a *Authenticator) Login(ctx context.Context) (*session.Session, error) {
	a.logger.Info("starting interactive login", slog.Int("redirect_port", a.port))

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("auth: generating state token: %w", err)
	}

	resultCh := make(chan callbackResult, 1)

	srv, err := a.startCallbackServer(ctx, state, resultCh)
	if err != nil {
		return nil, err
	}
	defer a.shutdownCallbackServer(srv)

	authURL := a.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	a.display(authURL)

	code, err := a.waitForCallback(ctx, resultCh)
	if err != nil {
		return nil, err
	}

	a.logger.Info("authorization code received, exchanging for token")

	tok, err := a.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	a.logger.Info("login successful", slog.Time("expiry", tok.Expiry))

	return sessionFromToken(tok, ""), nil
}

// Refresh exchanges refreshToken for a new session. On upstream rejection
// (or when no refresh token is available at all) it falls back to an
// interactive Login; only when that attempt also fails does it return
// ErrRefreshFailed.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*session.Session, error) {
	if refreshToken == "" {
		a.logger.Info("no refresh token available, starting interactive login")
		return a.loginFallback(ctx, errors.New("no refresh token"))
	}

	a.logger.Debug("exchanging refresh token")

	src := a.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		a.logger.Warn("refresh token rejected, falling back to interactive login",
			slog.String("error", err.Error()),
		)

		return a.loginFallback(ctx, err)
	}

	a.logger.Info("token refreshed", slog.Time("expiry", tok.Expiry))

	return sessionFromToken(tok, refreshToken), nil
}

// loginFallback attempts an interactive login after a failed refresh,
// folding both errors into ErrRefreshFailed if it fails too.
func (a *Authenticator) loginFallback(ctx context.Context, refreshErr error) (*session.Session, error) {
	s, err := a.Login(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: refresh: %v; login: %v", ErrRefreshFailed, refreshErr, err)
	}

	return s, nil
}

// startCallbackServer binds the fixed redirect port and serves the single
// redirect request.
func (a *Authenticator) startCallbackServer(ctx context.Context, state string, resultCh chan callbackResult) (*http.Server, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", a.port))
	if err != nil {
		return nil, fmt.Errorf("%w: binding 127.0.0.1:%d: %v", ErrRedirectCapture, a.port, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+redirectPath, func(w http.ResponseWriter, r *http.Request) {
		handleRedirect(w, r, state, resultCh)
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			resultCh <- callbackResult{err: fmt.Errorf("%w: %v", ErrRedirectCapture, serveErr)}
		}
	}()

	a.logger.Info("redirect listener ready", slog.Int("port", a.port))

	return srv, nil
}

// handleRedirect validates the state, extracts the code, and acknowledges
// the browser. Only the first result is consumed; the channel is buffered
// so a stray second request cannot wedge the server goroutine.
func handleRedirect(w http.ResponseWriter, r *http.Request, state string, resultCh chan callbackResult) {
	query := r.URL.Query()

	if query.Get("state") != state {
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		sendResult(resultCh, callbackResult{err: fmt.Errorf("%w: state mismatch", ErrRedirectCapture)})

		return
	}

	if errParam := query.Get("error"); errParam != "" {
		http.Error(w, "authorization failed: "+errParam, http.StatusBadRequest)
		sendResult(resultCh, callbackResult{err: fmt.Errorf("%w: %s: %s",
			ErrTokenExchange, errParam, query.Get("error_description"))})

		return
	}

	code := query.Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		sendResult(resultCh, callbackResult{err: ErrCodeMissing})

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Login successful</h1>"+
		"<p>You can close this window and return to onelist.</p></body></html>")
	sendResult(resultCh, callbackResult{code: code})
}

func sendResult(resultCh chan callbackResult, res callbackResult) {
	select {
	case resultCh <- res:
	default:
	}
}

// waitForCallback blocks until the redirect arrives, the wait times out, or
// ctx is canceled.
func (a *Authenticator) waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	timer := time.NewTimer(redirectWait)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return "", res.err
		}

		return res.code, nil
	case <-timer.C:
		return "", fmt.Errorf("%w: no redirect within %s", ErrRedirectCapture, redirectWait)
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrRedirectCapture, ctx.Err())
	}
}

// shutdownCallbackServer drains the transient redirect server.
func (a *Authenticator) shutdownCallbackServer(srv *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("redirect listener shutdown error", slog.String("error", err.Error()))
	}
}

// sessionFromToken maps an oauth2 token response to a Session. The expiry
// is the instant of acquisition plus the reported expires_in, which the
// oauth2 library has already folded into tok.Expiry. When the provider
// rotates nothing, the previous refresh token is kept.
func sessionFromToken(tok *oauth2.Token, previousRefresh string) *session.Session {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}

	return &session.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    tok.Expiry,
	}
}

// generateState produces a random hex string for the OAuth2 state
// parameter, tying the captured redirect to this login attempt.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
