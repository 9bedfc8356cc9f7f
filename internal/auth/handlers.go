package auth

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Handler struct {
	DB     *sql.DB
	Secret []byte
}

func NewHandler(db *sql.DB, secret []byte) *Handler {
	return &Handler{DB: db, Secret: secret}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	Principal string `json:"principal"`
}

// ------------------------------------------------------------------
// Anonymous session: POST /auth/anonymous
// ------------------------------------------------------------------

// The app works without an account: an anonymous user row scopes the task
// collection just like a registered one.
func (h *Handler) Anonymous(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	_, err := h.DB.ExecContext(r.Context(), `
		INSERT INTO users (id, is_anonymous) VALUES ($1, TRUE)
	`, id)
	if err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeToken(w, id)
}

// ------------------------------------------------------------------
// Registration: POST /auth/register
// ------------------------------------------------------------------

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "hash error", http.StatusInternalServerError)
		return
	}

	var id string
	err = h.DB.QueryRowContext(r.Context(), `
		INSERT INTO users (email, password) VALUES ($1, $2)
		ON CONFLICT (email) DO NOTHING
		RETURNING id
	`, email, string(hash)).Scan(&id)
	if err == sql.ErrNoRows {
		http.Error(w, "email already exists", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeToken(w, id)
}

// ------------------------------------------------------------------
// Login: POST /auth/login
// ------------------------------------------------------------------

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var id, hash string
	err := h.DB.QueryRowContext(r.Context(), `
		SELECT id, COALESCE(password, '') FROM users WHERE email = $1
	`, strings.TrimSpace(strings.ToLower(req.Email))).Scan(&id, &hash)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusForbidden)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusForbidden)
		return
	}

	h.writeToken(w, id)
}

// ------------------------------------------------------------------
// Current session: GET /auth/me
// ------------------------------------------------------------------

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var email sql.NullString
	var anonymous bool
	err := h.DB.QueryRowContext(r.Context(), `
		SELECT email, is_anonymous FROM users WHERE id = $1
	`, principal).Scan(&email, &anonymous)
	if err != nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"principal":    principal,
		"email":        email.String,
		"is_anonymous": anonymous,
	})
}

func (h *Handler) writeToken(w http.ResponseWriter, principal string) {
	token, err := GenerateToken(h.Secret, principal)
	if err != nil {
		http.Error(w, "token error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tokenResponse{Token: token, Principal: principal})
}
