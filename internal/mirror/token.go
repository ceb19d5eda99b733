package mirror

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sangkips/tillsync/pkg/utils"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer implements the client-credentials grant for the till and
// checks the bearer tokens it issued.
type TokenIssuer struct {
	clientID   string
	secretHash []byte
	jwt        *utils.JWTManager
	log        zerolog.Logger
}

// NewTokenIssuer creates a token issuer. secretHash is a bcrypt hash of the
// client secret.
func NewTokenIssuer(clientID, secretHash string, jwt *utils.JWTManager, log zerolog.Logger) *TokenIssuer {
	return &TokenIssuer{
		clientID:   clientID,
		secretHash: []byte(secretHash),
		jwt:        jwt,
		log:        log.With().Str("component", "mirror_auth").Logger(),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type oauthError struct {
	Error string `json:"error"`
}

// Token handles POST /oauth/token
func (t *TokenIssuer) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, oauthError{Error: "invalid_request"})
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, oauthError{Error: "unsupported_grant_type"})
		return
	}

	id, secret, ok := clientCredentials(r)
	if !ok || !t.verify(id, secret) {
		t.log.Warn().Str("client_id", id).Str("remote", r.RemoteAddr).Msg("client authentication failed")
		w.Header().Set("WWW-Authenticate", `Basic realm="mirror"`)
		writeJSON(w, http.StatusUnauthorized, oauthError{Error: "invalid_client"})
		return
	}

	token, err := t.jwt.GenerateAccessToken(uuid.Nil, id, []string{utils.RoleSync})
	if err != nil {
		t.log.Error().Err(err).Msg("failed to sign token")
		writeJSON(w, http.StatusInternalServerError, oauthError{Error: "server_error"})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(t.jwt.Expiry().Seconds()),
	})
}

func (t *TokenIssuer) verify(id, secret string) bool {
	if subtle.ConstantTimeCompare([]byte(id), []byte(t.clientID)) != 1 {
		return false
	}
	return bcrypt.CompareHashAndPassword(t.secretHash, []byte(secret)) == nil
}

// clientCredentials reads HTTP Basic credentials, falling back to form
// fields. Basic credentials arrive form-encoded per RFC 6749 2.3.1.
func clientCredentials(r *http.Request) (string, string, bool) {
	if id, secret, ok := r.BasicAuth(); ok {
		uid, err1 := url.QueryUnescape(id)
		usecret, err2 := url.QueryUnescape(secret)
		if err1 != nil || err2 != nil {
			return "", "", false
		}
		return uid, usecret, true
	}
	id := r.PostForm.Get("client_id")
	return id, r.PostForm.Get("client_secret"), id != ""
}

// Authenticate requires a bearer token carrying the sync role
func (t *TokenIssuer) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			writeJSON(w, http.StatusUnauthorized, oauthError{Error: "invalid_token"})
			return
		}
		claims, err := t.jwt.ValidateAccessToken(raw)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, oauthError{Error: "invalid_token"})
			return
		}
		if !claims.HasRole(utils.RoleSync) {
			writeJSON(w, http.StatusForbidden, oauthError{Error: "insufficient_scope"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
