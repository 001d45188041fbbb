package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"training-portal/internal/admin"
	"training-portal/internal/auth"
	"training-portal/internal/domain"
	"training-portal/internal/guide"
	"training-portal/internal/quiz"
)

// Server wires the portal use cases into an HTTP surface. Route guards read
// AuthorizationView snapshots from the auth manager; quiz attempts are owned
// here, one per validated grant.
type Server struct {
	auth    *auth.Manager
	quizzes *quiz.Service
	guides  *guide.Service
	admins  *admin.Service
	now     func() time.Time

	mu       sync.Mutex
	attempts map[string]*quiz.Attempt
}

func NewServer(authManager *auth.Manager, quizzes *quiz.Service, guides *guide.Service, admins *admin.Service) *Server {
	return NewServerWithClock(authManager, quizzes, guides, admins, time.Now)
}

// NewServerWithClock is test-only for deterministic timestamps.
func NewServerWithClock(authManager *auth.Manager, quizzes *quiz.Service, guides *guide.Service, admins *admin.Service, now func() time.Time) *Server {
	return &Server{
		auth:     authManager,
		quizzes:  quizzes,
		guides:   guides,
		admins:   admins,
		now:      now,
		attempts: make(map[string]*quiz.Attempt),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Post("/auth/sign-in", s.handleSignIn)
	r.Post("/auth/sign-out", s.handleSignOut)
	r.Get("/auth/view", s.handleView)
	r.With(s.requireSession).Post("/auth/change-password", s.handleChangePassword)

	// Study guides stay publicly browsable: loss of the profile store must
	// not block access to public content.
	r.Get("/guides", s.handleListGuides)
	r.Get("/guides/{guideID}", s.handleGetGuide)
	r.Get("/guides/{guideID}/questions", s.handleGuideQuestions)
	r.Get("/guides/{guideID}/categories", s.handleGuideCategories)
	r.With(s.requireSession, s.passwordChangeGate).Post("/guides/{guideID}/progress", s.handleGuideProgress)
	r.With(s.requireSession).Get("/guides/{guideID}/progress", s.handleListProgress)

	r.Post("/quiz/access", s.handleValidateAccess)
	r.Post("/quiz/attempts/{attemptID}/select", s.handleSelect)
	r.Post("/quiz/attempts/{attemptID}/submit", s.handleSubmit)

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin, s.passwordChangeGate)
		r.Get("/users", s.handleListUsers)
		r.Get("/stats", s.handleStats)
		r.Post("/users/{userID}/reset-password", s.handleResetPassword)
		r.With(s.requireSuperAdmin).Patch("/users/{userID}/role", s.handleUpdateRole)
	})

	wsHandler := NewWSHandler(s.auth)
	r.Get("/ws/auth", wsHandler.ServeWS)

	return r
}

// Auth endpoints

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.auth.SignIn(r.Context(), req.Email, req.Password); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "wrong credentials")
		case errors.Is(err, domain.ErrServiceUnreachable):
			writeError(w, http.StatusServiceUnavailable, "service unavailable, you may still browse public content")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, s.auth.View())
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context()); err != nil {
		// Local state is already cleared; surface the remote failure.
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.auth.View())
}

func (s *Server) handleView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.auth.View())
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.auth.ChangePassword(r.Context(), req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, domain.ErrPasswordPolicy):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":      domain.ErrPasswordPolicy.Error(),
				"validation": auth.ValidatePassword(req.NewPassword),
			})
		case errors.Is(err, domain.ErrInvalidCurrentPassword):
			writeError(w, http.StatusUnauthorized, domain.ErrInvalidCurrentPassword.Error())
		case errors.Is(err, domain.ErrServiceUnreachable):
			writeError(w, http.StatusServiceUnavailable, "service unavailable, you may still browse public content")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, s.auth.View())
}

// Study guide endpoints

func (s *Server) handleListGuides(w http.ResponseWriter, r *http.Request) {
	guides, err := s.guides.Guides(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, guides)
}

func (s *Server) handleGetGuide(w http.ResponseWriter, r *http.Request) {
	g, err := s.guides.Guide(r.Context(), chi.URLParam(r, "guideID"))
	if errors.Is(err, domain.ErrGuideNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleGuideQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := s.guides.Questions(r.Context(), chi.URLParam(r, "guideID"))
	if errors.Is(err, domain.ErrGuideNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sanitizeQuestions(questions))
}

func (s *Server) handleGuideCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.guides.Categories(r.Context(), chi.URLParam(r, "guideID"))
	if errors.Is(err, domain.ErrGuideNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

type progressRequest struct {
	QuestionIndex   int   `json:"questionIndex"`
	SelectedIndices []int `json:"selectedIndices"`
}

func (s *Server) handleGuideProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	view := s.auth.View()
	userID := ""
	if view.Profile != nil {
		userID = view.Profile.ID
	}
	correct, err := s.guides.RecordAnswer(r.Context(), chi.URLParam(r, "guideID"), userID, req.QuestionIndex, req.SelectedIndices)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"correct": correct})
}

func (s *Server) handleListProgress(w http.ResponseWriter, r *http.Request) {
	view := s.auth.View()
	userID := ""
	if view.Profile != nil {
		userID = view.Profile.ID
	}
	records, err := s.guides.Progress(r.Context(), chi.URLParam(r, "guideID"), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Quiz endpoints

type accessRequest struct {
	Token string `json:"token"`
}

type accessResponse struct {
	AttemptID string            `json:"attemptId"`
	QuizID    string            `json:"quizId"`
	Questions []questionPayload `json:"questions"`
}

func (s *Server) handleValidateAccess(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	grant, err := s.quizzes.ValidateAccess(r.Context(), req.Token)
	if errors.Is(err, domain.ErrGrantNotFound) || errors.Is(err, domain.ErrAccessExpiredOrUsed) {
		writeError(w, http.StatusForbidden, "no access")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	attempt, err := s.quizzes.StartAttempt(r.Context(), grant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	attemptID := uuid.NewString()
	s.mu.Lock()
	s.attempts[attemptID] = attempt
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, accessResponse{
		AttemptID: attemptID,
		QuizID:    grant.QuizID,
		Questions: sanitizeQuestions(attempt.Questions()),
	})
}

type selectRequest struct {
	QuestionIndex int `json:"questionIndex"`
	OptionIndex   int `json:"optionIndex"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	attempt, ok := s.attempt(chi.URLParam(r, "attemptID"))
	if !ok {
		writeError(w, http.StatusNotFound, "attempt not found")
		return
	}
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := attempt.Select(req.QuestionIndex, req.OptionIndex); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, attempt.Answers())
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")
	attempt, ok := s.attempt(attemptID)
	if !ok {
		writeError(w, http.StatusNotFound, "attempt not found")
		return
	}
	var attribution domain.Attribution
	if err := json.NewDecoder(r.Body).Decode(&attribution); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.quizzes.Submit(r.Context(), attempt, attribution)
	if errors.Is(err, domain.ErrSubmissionFailed) {
		// Fatal to the attempt but retryable by the user: the attempt stays open.
		writeError(w, http.StatusBadGateway, "submission failed, please retry")
		return
	}
	if errors.Is(err, domain.ErrAttemptSubmitted) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	delete(s.attempts, attemptID)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) attempt(id string) (*quiz.Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[id]
	return attempt, ok
}

// Admin endpoints

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.admins.Users(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	filters := domain.ResultFilters{
		Since: admin.SinceFor(r.URL.Query().Get("timeRange"), s.now()),
		LDAP:  r.URL.Query().Get("username"),
	}
	stats, err := s.admins.Stats(r.Context(), filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type roleRequest struct {
	Role domain.Role `json:"role"`
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	view := s.auth.View()
	actorID := ""
	if view.Profile != nil {
		actorID = view.Profile.ID
	}
	err := s.admins.UpdateRole(r.Context(), actorID, chi.URLParam(r, "userID"), req.Role)
	if errors.Is(err, domain.ErrForbidden) {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	temp, err := s.admins.ResetPassword(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tempPassword": temp})
}

// Payload helpers

type optionPayload struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type questionPayload struct {
	ID       string              `json:"id"`
	Content  string              `json:"content"`
	Type     domain.QuestionType `json:"type"`
	Category string              `json:"category"`
	Options  []optionPayload     `json:"options"`
}

// sanitizeQuestions strips correctness flags and explanations before
// questions leave the process.
func sanitizeQuestions(questions []domain.Question) []questionPayload {
	out := make([]questionPayload, len(questions))
	for i, q := range questions {
		options := make([]optionPayload, len(q.Options))
		for j, opt := range q.Options {
			options[j] = optionPayload{ID: opt.ID, Text: opt.Text}
		}
		out[i] = questionPayload{
			ID:       q.ID,
			Content:  q.Content,
			Type:     q.Type,
			Category: q.Category,
			Options:  options,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
