package suggest

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"taskpilot-backend/internal/analytics"
	"taskpilot-backend/internal/auth"
)

// -------------------------------
// HANDLERS
// -------------------------------

func GetSuggestionsHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reg.For(principal).State())
	}
}

func GenerateHandler(reg *Registry, dbx *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(body.Prompt) == "" {
			http.Error(w, "prompt is required", http.StatusBadRequest)
			return
		}

		rec := reg.For(principal)
		rec.Generate(r.Context(), body.Prompt)
		state := rec.State()

		if state.ErrorKind == "" {
			env := analytics.FromRequest(r)
			env.Principal = principal
			_ = analytics.Log(r.Context(), dbx, env, "tasks_generated", map[string]any{
				"prompt_len":       len(body.Prompt),
				"suggestion_count": len(state.Suggestions),
			}, analytics.SourceEventKeyFromRequest(r))
		} else {
			log.Printf("[WARN] generation failed principal=%s kind=%s: %s",
				principal, state.ErrorKind, state.ErrorMsg)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(state)
	}
}

func PromoteHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(body.Text) == "" {
			http.Error(w, "text is required", http.StatusBadRequest)
			return
		}

		rec := reg.For(principal)
		if err := rec.Promote(r.Context(), body.Text); err != nil {
			log.Printf("[WARN] promote failed principal=%s: %v", principal, err)
			http.Error(w, "promote failed: "+err.Error(), http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rec.State())
	}
}

func DismissHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		rec := reg.For(principal)
		rec.DismissAll()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rec.State())
	}
}

func ClearHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		rec := reg.For(principal)
		rec.ClearBuffer()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rec.State())
	}
}
