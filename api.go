package main

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

type loginRequest struct {
	Name string `json:"name"`
}

type loginResponse struct {
	Ok   bool   `json:"ok"`
	Name string `json:"name"`
}

type apiError struct {
	Error string `json:"error"`
}

type phrasesResponse struct {
	Phrases  []string `json:"phrases"`
	Called   []string `json:"called"`
	RoundKey string   `json:"roundKey"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// serveLogin validates a display name and persists it client-side in the
// displayName cookie. Unlike the websocket channel, validation failures
// here are reported explicitly.
func serveLogin(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		var req loginRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		name := cleanName(req.Name)
		if name == "" {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "Name required"})
			return
		}
		if strings.ContainsAny(name, "<>") {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "Invalid characters"})
			return
		}

		// Percent-encoded so the client's decodeURIComponent inverts it
		// exactly; QueryEscape would turn spaces into "+", which
		// decodeURIComponent leaves alone.
		http.SetCookie(w, &http.Cookie{
			Name:     "displayName",
			Value:    url.PathEscape(name),
			Path:     "/",
			HttpOnly: false,
			SameSite: http.SameSiteLaxMode,
		})

		logf(cfg, "SERVE: Login for %q from %s", name, realIP(r))

		writeJSON(w, http.StatusOK, loginResponse{Ok: true, Name: name})
	}
}

// servePhrases returns the read-only board snapshot. A ?date=YYYY-MM-DD
// hint selects the round key echoed back for card previews; it never
// affects server state.
func servePhrases(cfg *Config, hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		securityHeaders(cfg, w)

		phrases, called := hub.snapshot()

		writeJSON(w, http.StatusOK, phrasesResponse{
			Phrases:  phrases,
			Called:   called,
			RoundKey: requestedRoundKey(cfg, r.URL.Query().Get("date")),
		})

		logf(cfg, "SERVE: Phrase snapshot (%d phrases) to %s in %s",
			len(phrases),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}
