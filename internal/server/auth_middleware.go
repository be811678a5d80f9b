package server

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/brk3/streakmate/internal/config"
	"github.com/brk3/streakmate/internal/logger"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gorilla/securecookie"
	"golang.org/x/oauth2"
)

const (
	sessionCookieName = "session"
	sessionMaxAge     = 24 * time.Hour
	apiKeyPrefix      = "hab_"
	anonymousUserID   = "anonymous"
)

type userCtxKey struct{}

type User struct {
	Subject string
	Email   string
	UserID  string
	Claims  map[string]any
}

// StateStore holds PKCE verifiers between the login redirect and the
// callback.
type StateStore struct {
	ttl time.Duration
	mu  sync.Mutex
	m   map[string]authState
}

type authState struct {
	Verifier string
	Return   string
	ExpireAt time.Time
}

func NewStateStore(ttl time.Duration) *StateStore {
	s := &StateStore{ttl: ttl, m: make(map[string]authState)}
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			s.sweep(time.Now())
		}
	}()
	return s
}

func (s *StateStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.m {
		if now.After(v.ExpireAt) {
			delete(s.m, k)
		}
	}
}

func (s *StateStore) Put(key string, v authState) {
	s.mu.Lock()
	s.m[key] = v
	s.mu.Unlock()
}

func (s *StateStore) GetAndDelete(key string) (authState, bool) {
	s.mu.Lock()
	v, ok := s.m[key]
	if ok {
		delete(s.m, key)
	}
	s.mu.Unlock()
	if ok && time.Now().After(v.ExpireAt) {
		return authState{}, false
	}
	return v, ok
}

func ConfigureOIDCProviders(cfg *config.Config) (map[string]*AuthProvider, *securecookie.SecureCookie, error) {
	logger.Info("Configuring OIDC providers", "count", len(cfg.OIDCProviders))
	providers := make(map[string]*AuthProvider)

	hashKey := securecookie.GenerateRandomKey(64)
	blockKey := securecookie.GenerateRandomKey(32)
	if hashKey == nil || blockKey == nil {
		return nil, nil, fmt.Errorf("failed to generate secure cookie keys")
	}
	sessionCookie := securecookie.New(hashKey, blockKey)
	sessionCookie.MaxAge(int(sessionMaxAge.Seconds()))

	for _, pc := range cfg.OIDCProviders {
		logger.Debug("Setting up OIDC provider", "id", pc.Id, "name", pc.Name, "issuer", pc.IssuerURL)
		prov, err := oidc.NewProvider(context.Background(), pc.IssuerURL)
		if err != nil {
			logger.Error("Failed to create OIDC provider", "id", pc.Id, "error", err)
			return nil, nil, fmt.Errorf("failed to create OIDC provider %s: %w", pc.Id, err)
		}

		scopes := pc.Scopes
		if len(scopes) == 0 {
			scopes = []string{oidc.ScopeOpenID, "email", oidc.ScopeOfflineAccess}
		}
		providers[pc.Id] = &AuthProvider{
			name: pc.Name,
			oauth2: &oauth2.Config{
				ClientID:     pc.ClientID,
				ClientSecret: pc.ClientSecret,
				Endpoint:     prov.Endpoint(),
				RedirectURL:  pc.RedirectURL,
				Scopes:       scopes,
			},
			oidcProv:   prov,
			idVerifier: prov.Verifier(&oidc.Config{ClientID: pc.ClientID}),
			state:      NewStateStore(5 * time.Minute),
		}
		logger.Info("OIDC provider configured", "id", pc.Id, "name", pc.Name)
	}

	return providers, sessionCookie, nil
}

// authMiddleware accepts, in order: a session cookie, an API key bearer
// token, or a "provider:jwt" bearer token. Expired ID tokens are refreshed
// from the stored oauth2 token when possible.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		providerID, rawIDToken := s.sessionToken(r)

		if rawIDToken == "" {
			token, ok := bearerToken(r)
			if ok && strings.HasPrefix(token, apiKeyPrefix) {
				user, authenticated := s.authenticateAPIKey(token)
				if !authenticated {
					RecordAuthEvent("verification", "failed", "apikey")
					s.handleAuthFailure(w, r, false)
					return
				}
				RecordAuthEvent("verification", "success", "apikey")
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userCtxKey{}, user)))
				return
			}
			if ok {
				if pID, jwt, err := parseProviderToken(token); err == nil && s.authProviders[pID] != nil {
					providerID, rawIDToken = pID, jwt
				} else {
					logger.Debug("Unusable bearer token", "error", err)
				}
			}
		}

		if rawIDToken == "" || providerID == "" {
			RecordAuthEvent("verification", "missing_token", "unknown")
			s.handleAuthFailure(w, r, false)
			return
		}

		idTok, ok := s.verifyOrRefresh(w, r, providerID, rawIDToken)
		if !ok {
			s.handleAuthFailure(w, r, true)
			return
		}

		var claims map[string]any
		if err := idTok.Claims(&claims); err != nil {
			logger.Error("Failed to extract claims from token", "error", err)
			s.handleAuthFailure(w, r, true)
			return
		}
		u := &User{
			Subject: idTok.Subject,
			Email:   strClaim(claims, "email"),
			UserID:  userIDFromClaims(claims),
			Claims:  claims,
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userCtxKey{}, u)))
	})
}

func (s *Server) sessionToken(r *http.Request) (providerID, rawIDToken string) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || s.sessionCookie == nil {
		return "", ""
	}
	var prefixed string
	if err := s.sessionCookie.Decode(sessionCookieName, c.Value, &prefixed); err != nil {
		logger.Debug("Failed to decode session cookie", "error", err)
		return "", ""
	}
	pID, tok, err := parseProviderToken(prefixed)
	if err != nil || s.authProviders[pID] == nil {
		logger.Debug("Session cookie holds an unusable token", "error", err)
		return "", ""
	}
	return pID, tok
}

func bearerToken(r *http.Request) (string, bool) {
	ah := r.Header.Get("Authorization")
	if !strings.HasPrefix(ah, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
	return tok, tok != ""
}

func (s *Server) verifyOrRefresh(w http.ResponseWriter, r *http.Request, providerID, rawIDToken string) (*oidc.IDToken, bool) {
	prov := s.authProviders[providerID]
	idTok, err := prov.idVerifier.Verify(r.Context(), rawIDToken)
	if err == nil {
		RecordAuthEvent("verification", "success", providerID)
		return idTok, true
	}
	logger.Debug("ID token verification failed, attempting refresh", "provider", providerID, "error", err)
	RecordAuthEvent("verification", "failed", providerID)

	newIDToken, refreshed := s.tryRefreshToken(r.Context(), providerID, rawIDToken)
	if !refreshed {
		RecordAuthEvent("refresh", "failed", providerID)
		return nil, false
	}
	idTok, err = prov.idVerifier.Verify(r.Context(), newIDToken)
	if err != nil {
		logger.Debug("Refreshed ID token failed verification", "error", err)
		RecordAuthEvent("refresh", "verification_failed", providerID)
		return nil, false
	}
	RecordAuthEvent("refresh", "success", providerID)

	if err := s.setSessionCookie(w, providerID+":"+newIDToken); err != nil {
		logger.Error("Failed to encode refreshed session cookie", "error", err)
		return nil, false
	}
	return idTok, true
}

func (s *Server) setSessionCookie(w http.ResponseWriter, prefixedToken string) error {
	val, err := s.sessionCookie.Encode(sessionCookieName, prefixedToken)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    val,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionMaxAge.Seconds()),
	})
	return nil
}

// parseProviderToken splits a "provider:jwt" token.
func parseProviderToken(token string) (providerID, jwt string, err error) {
	if token == "" {
		return "", "", fmt.Errorf("empty token")
	}
	providerID, jwt, found := strings.Cut(token, ":")
	if !found {
		return "", "", fmt.Errorf("invalid token format: expected 'provider:jwt'")
	}
	if providerID == "" {
		return "", "", fmt.Errorf("empty provider ID")
	}
	if jwt == "" {
		return "", "", fmt.Errorf("empty JWT token")
	}
	return providerID, jwt, nil
}

func strClaim(m map[string]any, k string) string {
	if v, ok := m[k].(string); ok {
		return v
	}
	return ""
}

// userIDFromClaims derives a stable opaque user ID from issuer and subject.
func userIDFromClaims(claims map[string]any) string {
	iss, ok := claims["iss"].(string)
	if !ok {
		return ""
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return ""
	}
	hash := sha256.Sum256([]byte(iss + "|" + sub))
	return fmt.Sprintf("user-%x", hash[:8])
}

// userIDFromContext returns the authenticated user, "anonymous" when auth
// is disabled, or "" when auth is enabled and nobody is logged in.
func userIDFromContext(authEnabled bool, r *http.Request) string {
	if !authEnabled {
		return anonymousUserID
	}
	user, ok := r.Context().Value(userCtxKey{}).(*User)
	if !ok {
		return ""
	}
	return user.UserID
}

func (s *Server) parseTokenClaims(providerID, token string) (map[string]any, error) {
	provider := s.authProviders[providerID]
	verifier := provider.oidcProv.Verifier(&oidc.Config{
		ClientID:        provider.oauth2.ClientID,
		SkipExpiryCheck: true,
	})

	idTok, err := verifier.Verify(context.Background(), token)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expired token: %w", err)
	}
	var claims map[string]any
	err = idTok.Claims(&claims)
	return claims, err
}

func (s *Server) handleAuthFailure(w http.ResponseWriter, r *http.Request, clearCookie bool) {
	if clearCookie {
		http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: "", Path: "/", MaxAge: -1})
	}

	accept := r.Header.Get("Accept")
	if r.Method == http.MethodGet && (strings.Contains(accept, "text/html") || accept == "") {
		http.Redirect(w, r, "/auth/login", http.StatusFound)
		return
	}
	if clearCookie {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	} else {
		w.Header().Set("WWW-Authenticate", `Bearer realm="habits"`)
	}
	http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
}

func (s *Server) tryRefreshToken(ctx context.Context, providerID, expiredIDToken string) (string, bool) {
	claims, err := s.parseTokenClaims(providerID, expiredIDToken)
	if err != nil {
		logger.Debug("Failed to parse token claims", "error", err)
		return "", false
	}
	userID := userIDFromClaims(claims)
	if userID == "" {
		return "", false
	}

	storedToken, exists, err := s.store.GetRefreshToken(userID)
	if err != nil {
		logger.Error("Failed to retrieve token from storage", "user_id", userID, "error", err)
		return "", false
	}
	if !exists {
		logger.Debug("No stored token for user", "user_id", userID)
		return "", false
	}

	freshToken, err := s.authProviders[providerID].oauth2.TokenSource(ctx, storedToken).Token()
	if err != nil {
		logger.Debug("Token refresh failed", "user_id", userID, "error", err)
		if delErr := s.store.DeleteRefreshToken(userID); delErr != nil {
			logger.Error("Failed to delete refresh token", "user_id", userID, "error", delErr)
		}
		return "", false
	}
	if err := s.store.PutRefreshToken(userID, freshToken); err != nil {
		logger.Error("Failed to persist refresh token", "user_id", userID, "error", err)
	}

	newIDToken, ok := freshToken.Extra("id_token").(string)
	if !ok || newIDToken == "" {
		logger.Debug("No id_token in refreshed token", "user_id", userID)
		return "", false
	}
	logger.Debug("Refreshed token for user", "user_id", userID, "expiry", freshToken.Expiry)
	return newIDToken, true
}

func (s *Server) authenticateAPIKey(apiKey string) (*User, bool) {
	keyHash := hashAPIKey(apiKey)
	userID, found, err := s.store.GetAPIKey(keyHash)
	if err != nil {
		logger.Error("Failed to lookup API key", "error", err)
		return nil, false
	}
	if !found {
		logger.Debug("API key not found", "key_hash", truncateHash(keyHash))
		return nil, false
	}

	return &User{
		UserID:  userID,
		Subject: "apikey:" + truncateHash(keyHash),
		Claims:  map[string]any{"auth_method": "api_key"},
	}, true
}
