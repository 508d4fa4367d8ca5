package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/roadcare/vigil/internal/database"
	"github.com/roadcare/vigil/internal/models"
)

const authCookie = "session_id"

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

func validEmail(email string) bool {
	return len(email) <= 255 && emailPattern.MatchString(email)
}

func validPassword(password string) bool {
	if len(password) < 8 || len(password) > 72 {
		return false
	}
	hasLetter, hasDigit := false, false
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

func validUsername(username string) bool {
	return len(username) >= 3 && len(username) <= 30 && usernamePattern.MatchString(username)
}

// authManager maps login cookies onto user ids. Cookie sessions live in
// memory only; a server restart logs everyone out.
type authManager struct {
	mu       sync.Mutex
	sessions map[string]int
}

func newAuthManager() *authManager {
	return &authManager{sessions: make(map[string]int)}
}

func (a *authManager) userID(r *http.Request) (int, bool) {
	cookie, err := r.Cookie(authCookie)
	if err != nil {
		return 0, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.sessions[cookie.Value]
	return id, ok
}

// login replaces any previous cookie session for the user.
func (a *authManager) login(userID int) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, id := range a.sessions {
		if id == userID {
			delete(a.sessions, key)
		}
	}
	key := uuid.NewString()
	a.sessions[key] = userID
	return key
}

func (a *authManager) logout(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, key)
}

func setAuthCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Email == "" || req.Password == "" || req.Username == "" {
		s.writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}
	if !validEmail(req.Email) {
		s.writeError(w, http.StatusBadRequest, "Invalid email format")
		return
	}
	if !validPassword(req.Password) {
		s.writeError(w, http.StatusBadRequest, "Password must be 8-72 characters with at least one letter and one number")
		return
	}
	if !validUsername(req.Username) {
		s.writeError(w, http.StatusBadRequest, "Username must be 3-30 characters, alphanumeric and underscore only")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Errorw("password hashing failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	ctx, cancel := contextWithStoreTimeout()
	defer cancel()
	user, err := s.store.CreateUser(ctx, req.Email, req.Username, string(hash))
	switch {
	case errors.Is(err, database.ErrDuplicateEmail):
		s.writeError(w, http.StatusConflict, "Email already registered")
		return
	case errors.Is(err, database.ErrDuplicateUsername):
		s.writeError(w, http.StatusConflict, "Username already taken")
		return
	case err != nil:
		s.logger.Errorw("registration failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.logger.Infow("user registered", "email", req.Email)
	s.writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Email == "" || req.Password == "" {
		s.writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	ctx, cancel := contextWithStoreTimeout()
	defer cancel()
	user, hash, err := s.store.UserByEmail(ctx, req.Email)
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		s.logger.Errorw("login lookup failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		s.writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	key := s.auth.login(user.ID)
	setAuthCookie(w, key, 86400)
	s.logger.Infow("user logged in", "email", req.Email)
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if cookie, err := r.Cookie(authCookie); err == nil {
		s.auth.logout(cookie.Value)
	}
	setAuthCookie(w, "", -1)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  models.OutcomeSuccess,
		"message": "Logged out",
	})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	userID, ok := s.auth.userID(r)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ctx, cancel := contextWithStoreTimeout()
	defer cancel()
	user, err := s.store.UserByID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		s.logger.Errorw("current user lookup failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}
