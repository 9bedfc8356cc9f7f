package tasks

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"

	"taskpilot-backend/internal/analytics"
	"taskpilot-backend/internal/auth"
)

// -------------------------------
// HANDLERS
// -------------------------------

func GetTasksHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		snap, err := reg.For(principal).Snapshot(r.Context())
		if err != nil {
			http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if snap == nil {
			snap = []Task{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	}
}

func CreateTaskHandler(reg *Registry, dbx *sql.DB) http.HandlerFunc {
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

		if err := reg.For(principal).Create(r.Context(), body.Text); err != nil {
			log.Printf("[WARN] create failed principal=%s: %v", principal, err)
			http.Error(w, "create failed: "+err.Error(), http.StatusBadGateway)
			return
		}

		env := analytics.FromRequest(r)
		env.Principal = principal
		_ = analytics.Log(r.Context(), dbx, env, "task_created", map[string]any{
			"text_len": len(body.Text),
		}, analytics.SourceEventKeyFromRequest(r))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}
}

func SetTaskStatusHandler(reg *Registry, dbx *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			TaskID string `json:"task_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if _, err := uuid.Parse(body.TaskID); err != nil {
			http.Error(w, "task_id required", http.StatusBadRequest)
			return
		}

		store := reg.For(principal)
		if err := store.ToggleCompletion(r.Context(), body.TaskID); err != nil {
			if errors.Is(err, ErrNotFound) {
				http.Error(w, "task not found", http.StatusNotFound)
				return
			}
			log.Printf("[WARN] toggle failed task_id=%s: %v", body.TaskID, err)
			http.Error(w, "toggle failed: "+err.Error(), http.StatusBadGateway)
			return
		}

		// Best-effort event name from the converged state.
		eventName := "task_completed"
		if snap, err := store.Snapshot(r.Context()); err == nil {
			for _, t := range snap {
				if t.ID == body.TaskID && !t.Completed {
					eventName = "task_uncompleted"
				}
			}
		}

		env := analytics.FromRequest(r)
		env.Principal = principal
		_ = analytics.Log(r.Context(), dbx, env, eventName, map[string]any{
			"task_id": body.TaskID,
		}, analytics.SourceEventKeyFromRequest(r))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}
}

func DeleteTaskHandler(reg *Registry, dbx *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			TaskID string `json:"task_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if _, err := uuid.Parse(body.TaskID); err != nil {
			http.Error(w, "task_id required", http.StatusBadRequest)
			return
		}

		if err := reg.For(principal).Delete(r.Context(), body.TaskID); err != nil {
			if errors.Is(err, ErrNotFound) {
				http.Error(w, "task not found", http.StatusNotFound)
				return
			}
			log.Printf("[WARN] delete failed task_id=%s: %v", body.TaskID, err)
			http.Error(w, "delete failed: "+err.Error(), http.StatusBadGateway)
			return
		}

		env := analytics.FromRequest(r)
		env.Principal = principal
		_ = analytics.Log(r.Context(), dbx, env, "task_deleted", map[string]any{
			"task_id": body.TaskID,
		}, analytics.SourceEventKeyFromRequest(r))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}
}

// StreamTasksHandler serves the live feed over SSE. Each remote change
// arrives as one `snapshot` event carrying the full ordered task set.
func StreamTasksHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		sub, err := reg.For(principal).Subscribe(principal)
		if err != nil {
			http.Error(w, "subscribe failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		defer sub.Unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		for {
			select {
			case <-r.Context().Done():
				return
			case err := <-sub.Errs():
				log.Printf("[WARN] feed error principal=%s: %v", principal, err)
				_, _ = w.Write([]byte("event: error\ndata: subscription failed\n\n"))
				flusher.Flush()
				return
			case snap, open := <-sub.Snapshots():
				if !open {
					return
				}
				if snap == nil {
					snap = []Task{}
				}
				payload, err := json.Marshal(snap)
				if err != nil {
					continue
				}
				_, _ = w.Write([]byte("event: snapshot\ndata: "))
				_, _ = w.Write(payload)
				_, _ = w.Write([]byte("\n\n"))
				flusher.Flush()
			}
		}
	}
}
