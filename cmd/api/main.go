package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/rs/cors"

	"taskpilot-backend/internal/ai"
	"taskpilot-backend/internal/auth"
	"taskpilot-backend/internal/config"
	"taskpilot-backend/internal/db"
	"taskpilot-backend/internal/retry"
	"taskpilot-backend/internal/suggest"
	"taskpilot-backend/internal/tasks"
)

func main() {
	cfg := config.Load()

	database, err := db.Connect(cfg.ConnString())
	if err != nil {
		log.Fatal("failed to connect DB: ", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		log.Fatal("failed to migrate DB: ", err)
	}

	log.Println("connected to PostgreSQL")

	exec := retry.New()
	collection := tasks.NewPGCollection(database, cfg.ConnString())
	taskRegistry := tasks.NewRegistry(collection, exec)

	generator := ai.NewClient(cfg.AIBaseURL, exec)
	suggestRegistry := suggest.NewRegistry(generator, taskRegistry)

	authHandler := auth.NewHandler(database, []byte(cfg.JWTSecret))
	mw := auth.New([]byte(cfg.JWTSecret))

	mux := http.NewServeMux()

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	// ----- AUTH API -----
	mux.HandleFunc("/auth/anonymous", requirePost(authHandler.Anonymous))
	mux.HandleFunc("/auth/register", requirePost(authHandler.Register))
	mux.HandleFunc("/auth/login", requirePost(authHandler.Login))
	mux.HandleFunc("/auth/me", mw.Wrap(authHandler.Me))

	// ----- TASKS API -----
	mux.HandleFunc("/tasks", mw.Wrap(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			tasks.GetTasksHandler(taskRegistry)(w, r)
		case http.MethodPost:
			tasks.CreateTaskHandler(taskRegistry, database)(w, r)
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))
	mux.HandleFunc("/tasks/status", mw.Wrap(requirePost(tasks.SetTaskStatusHandler(taskRegistry, database))))
	mux.HandleFunc("/tasks/delete", mw.Wrap(requirePost(tasks.DeleteTaskHandler(taskRegistry, database))))
	mux.HandleFunc("/tasks/stream", mw.Wrap(tasks.StreamTasksHandler(taskRegistry)))

	// ----- SUGGESTIONS API -----
	mux.HandleFunc("/suggestions", mw.Wrap(suggest.GetSuggestionsHandler(suggestRegistry)))
	mux.HandleFunc("/suggestions/generate", mw.Wrap(requirePost(suggest.GenerateHandler(suggestRegistry, database))))
	mux.HandleFunc("/suggestions/promote", mw.Wrap(requirePost(suggest.PromoteHandler(suggestRegistry))))
	mux.HandleFunc("/suggestions/dismiss", mw.Wrap(requirePost(suggest.DismissHandler(suggestRegistry))))
	mux.HandleFunc("/suggestions/clear", mw.Wrap(requirePost(suggest.ClearHandler(suggestRegistry))))

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Idempotency-Key", "X-Platform", "X-Session-Id"},
		AllowCredentials: true,
	})

	handler := c.Handler(mux)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Println("API server is running on", addr)
	log.Fatal(http.ListenAndServe(addr, handler))
}

func requirePost(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			next(w, r)
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
