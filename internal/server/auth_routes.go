package server

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/brk3/streakmate/internal/logger"
	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"
)

func (s *Server) provider(w http.ResponseWriter, r *http.Request) (string, *AuthProvider, bool) {
	id := chi.URLParam(r, "id")
	p, ok := s.authProviders[id]
	if !ok {
		http.Error(w, `{"error":"unknown auth provider"}`, http.StatusNotFound)
		return id, nil, false
	}
	return id, p, true
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	_, prov, ok := s.provider(w, r)
	if !ok {
		return
	}

	verifier := make([]byte, 48)
	if _, err := rand.Read(verifier); err != nil {
		http.Error(w, "pkce gen failed", http.StatusInternalServerError)
		return
	}
	verifierStr := base64.RawURLEncoding.EncodeToString(verifier)
	hash := sha256.Sum256([]byte(verifierStr))
	challenge := base64.RawURLEncoding.EncodeToString(hash[:])

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		http.Error(w, "state gen failed", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(stateBytes)

	// Only relative return paths are honoured.
	ret := r.URL.Query().Get("return")
	if u, err := url.Parse(ret); ret == "" || err != nil || u.IsAbs() || u.Host != "" {
		ret = "/"
	}

	prov.state.Put(st, authState{
		Verifier: verifierStr,
		Return:   ret,
		ExpireAt: time.Now().Add(prov.state.ttl),
	})

	authURL := prov.oauth2.AuthCodeURL(
		st,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	id, prov, ok := s.provider(w, r)
	if !ok {
		return
	}
	st := r.URL.Query().Get("state")
	if st == "" {
		http.Error(w, "missing state", http.StatusBadRequest)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	saved, ok := prov.state.GetAndDelete(st)
	if !ok || saved.Verifier == "" {
		http.Error(w, "invalid or expired state", http.StatusBadRequest)
		return
	}

	tok, err := prov.oauth2.Exchange(r.Context(), code, oauth2.SetAuthURLParam("code_verifier", saved.Verifier))
	if err != nil {
		RecordAuthEvent("login", "exchange_failed", id)
		http.Error(w, "code exchange failed", http.StatusBadGateway)
		return
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		http.Error(w, "no id_token in response", http.StatusBadGateway)
		return
	}
	idToken, err := prov.idVerifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		RecordAuthEvent("login", "invalid_token", id)
		http.Error(w, "id_token invalid", http.StatusUnauthorized)
		return
	}

	if tok.RefreshToken != "" {
		var claims map[string]any
		if err := idToken.Claims(&claims); err != nil {
			logger.Error("Failed to extract claims from ID token", "error", err)
			http.Error(w, "token claims invalid", http.StatusUnauthorized)
			return
		}
		if userID := userIDFromClaims(claims); userID != "" {
			if err := s.store.PutRefreshToken(userID, tok); err != nil {
				logger.Error("Failed to store refresh token", "user_id", userID, "error", err)
			}
		}
	} else {
		logger.Debug("No refresh token from provider, sessions will not be refreshed", "provider", id)
	}

	if err := s.setSessionCookie(w, id+":"+rawIDToken); err != nil {
		logger.Error("Failed to encode session cookie", "error", err)
		http.Error(w, "session encoding failed", http.StatusInternalServerError)
		return
	}
	RecordAuthEvent("login", "success", id)
	http.Redirect(w, r, saved.Return, http.StatusFound)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	logger.Info("User logout completed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) simpleLogin(w http.ResponseWriter, r *http.Request) {
	ids := make([]string, 0, len(s.authProviders))
	for id := range s.authProviders {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<h1>Login</h1><style>button{display:block;margin:10px 0;padding:10px 20px;}</style>`)
	for _, id := range ids {
		fmt.Fprintf(w, `<form action="/auth/login/%s"><button>%s</button></form>`,
			url.PathEscape(id), html.EscapeString(s.authProviders[id].name))
	}
}

// getAPIToken hands the session's provider-prefixed ID token to a CLI
// user so it can be used as a bearer token.
func (s *Server) getAPIToken(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || s.sessionCookie == nil {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}
	var prefixedToken string
	if err := s.sessionCookie.Decode(sessionCookieName, cookie.Value, &prefixedToken); err != nil {
		http.Error(w, "invalid session cookie", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(prefixedToken))
}

func (s *Server) generateAPIKey(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(s.cfg.AuthEnabled, r)
	if userID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		http.Error(w, `{"error":"key generation failed"}`, http.StatusInternalServerError)
		return
	}
	apiKey := apiKeyPrefix + "live_" + hex.EncodeToString(raw)
	keyHash := hashAPIKey(apiKey)

	if err := s.store.PutAPIKey(keyHash, userID); err != nil {
		logger.Error("Failed to store API key", "user_id", userID, "error", err)
		http.Error(w, `{"error":"storage error"}`, http.StatusInternalServerError)
		return
	}
	logger.Info("Generated API key", "user_id", userID, "key_hash", truncateHash(keyHash))
	respond(w, http.StatusOK, APIKeyResponse{APIKey: apiKey})
}

func (s *Server) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(s.cfg.AuthEnabled, r)
	if userID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	hashes, err := s.store.ListAPIKeyHashes(userID)
	if err != nil {
		logger.Error("Failed to list API keys", "user_id", userID, "error", err)
		http.Error(w, `{"error":"storage error"}`, http.StatusInternalServerError)
		return
	}
	keys := make([]APIKeyInfo, 0, len(hashes))
	for _, h := range hashes {
		keys = append(keys, APIKeyInfo{KeyHash: h, Display: truncateHash(h)})
	}
	respond(w, http.StatusOK, APIKeyListResponse{Keys: keys})
}

func (s *Server) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(s.cfg.AuthEnabled, r)
	if userID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	keyHash := chi.URLParam(r, "hash")
	owner, found, err := s.store.GetAPIKey(keyHash)
	if err != nil {
		logger.Error("Failed to lookup API key", "error", err)
		http.Error(w, `{"error":"storage error"}`, http.StatusInternalServerError)
		return
	}
	// Someone else's key is reported the same as a missing one.
	if !found || owner != userID {
		http.Error(w, `{"error":"api key not found"}`, http.StatusNotFound)
		return
	}
	if err := s.store.DeleteAPIKey(keyHash); err != nil {
		logger.Error("Failed to delete API key", "error", err)
		http.Error(w, `{"error":"storage error"}`, http.StatusInternalServerError)
		return
	}
	logger.Info("Deleted API key", "user_id", userID, "key_hash", truncateHash(keyHash))
	w.WriteHeader(http.StatusNoContent)
}
