package web

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"faq-rag/internal/apperror"
	"faq-rag/internal/models"
	"faq-rag/internal/quiz"
	"faq-rag/internal/rag"
)

type Answerer interface {
	Query(ctx context.Context, question string) (models.Answer, error)
}

type QuizRunner interface {
	Start(ctx context.Context, s *quiz.Session) error
	Submit(ctx context.Context, s *quiz.Session, answer string) error
	End(s *quiz.Session)
}

type Rebuilder interface {
	Build(ctx context.Context, sourcePath string) (rag.BuildReport, error)
}

type IndexCounter interface {
	Count(ctx context.Context) (int, error)
}

// StaleReporter tells whether the FAQ source changed since the last build.
type StaleReporter interface {
	Stale() bool
}

// Handler wires the HTTP transport to the QA pipeline and the quiz.
type Handler struct {
	answerer   Answerer
	quiz       QuizRunner
	builder    Rebuilder
	index      IndexCounter
	stale      StaleReporter
	creds      *Credentials
	sourcePath string
}

// Deps groups what the handler needs. Stale may be nil when no watcher runs.
type Deps struct {
	Answerer    Answerer
	Quiz        QuizRunner
	Builder     Rebuilder
	Index       IndexCounter
	Stale       StaleReporter
	Credentials *Credentials
	SourcePath  string
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		answerer:   d.Answerer,
		quiz:       d.Quiz,
		builder:    d.Builder,
		index:      d.Index,
		stale:      d.Stale,
		creds:      d.Credentials,
		sourcePath: d.SourcePath,
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type questionRequest struct {
	Question string `json:"question"`
}

type quizAnswerRequest struct {
	Answer string `json:"answer"`
}

type sourceView struct {
	ID       string  `json:"id"`
	Prompt   string  `json:"prompt"`
	Response string  `json:"response"`
	Score    float32 `json:"score"`
}

type answerResponse struct {
	Question   string       `json:"question"`
	Answer     string       `json:"answer"`
	AnswerHTML string       `json:"answerHtml"`
	Sources    []sourceView `json:"sources"`
}

type quizResponse struct {
	State     quiz.State `json:"state"`
	Question  string     `json:"question,omitempty"`
	Answer    string     `json:"answer,omitempty"`
	Reference string     `json:"reference,omitempty"`
	Score     *float64   `json:"score,omitempty"`
	Band      quiz.Band  `json:"band,omitempty"`
	Feedback  string     `json:"feedback,omitempty"`
}

type statusResponse struct {
	Documents  int    `json:"documents"`
	IndexReady bool   `json:"indexReady"`
	Stale      bool   `json:"stale"`
	User       string `json:"user,omitempty"`
	Admin      bool   `json:"admin"`
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Status(c *gin.Context) {
	var resp statusResponse
	if sess := sessionFrom(c); sess != nil {
		resp.User, resp.Admin = sess.identity()
	}
	if h.stale != nil {
		resp.Stale = h.stale.Stale()
	}

	count, err := h.index.Count(c.Request.Context())
	switch {
	case err == nil:
		resp.Documents = count
		resp.IndexReady = true
	case apperror.IsCode(err, apperror.CodeIndexMissing):
	default:
		abortWithError(c, asHTTPError(err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, apperror.CodeInvalidInput, "username and password are required", err))
		return
	}
	admin, ok := h.creds.Verify(req.Username, req.Password)
	if !ok {
		log.Warn().Str("username", req.Username).Msg("Login failed")
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, "invalid_credentials", "invalid username or password", nil))
		return
	}

	sess, err := ensureSession(c)
	if err != nil {
		abortWithError(c, asHTTPError(err))
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.Username != req.Username {
		sess.Quiz.Reset()
	}
	sess.Username = req.Username
	sess.Admin = admin
	log.Info().Str("username", req.Username).Bool("admin", admin).Msg("Logged in")
	c.JSON(http.StatusOK, gin.H{"username": req.Username, "admin": admin})
}

func (h *Handler) Logout(c *gin.Context) {
	if sess := sessionFrom(c); sess != nil {
		sess.mu.Lock()
		sess.logout()
		sess.mu.Unlock()
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

func (h *Handler) Answer(c *gin.Context) {
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, apperror.CodeInvalidInput, "request body must be JSON with a question", err))
		return
	}

	answer, err := h.answerer.Query(c.Request.Context(), req.Question)
	if err != nil {
		abortWithError(c, asHTTPError(err))
		return
	}
	rendered, err := renderMarkdown(answer.Text)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "render_failed", "could not render the answer", err))
		return
	}

	sources := make([]sourceView, 0, len(answer.Sources))
	for _, s := range answer.Sources {
		sources = append(sources, sourceView{ID: s.ID, Prompt: s.Entry.Prompt, Response: s.Entry.Response, Score: s.Score})
	}
	c.JSON(http.StatusOK, answerResponse{
		Question:   answer.Question,
		Answer:     answer.Text,
		AnswerHTML: rendered,
		Sources:    sources,
	})
}

func (h *Handler) StartQuiz(c *gin.Context) {
	sess, err := ensureSession(c)
	if err != nil {
		abortWithError(c, asHTTPError(err))
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := h.quiz.Start(c.Request.Context(), &sess.Quiz); err != nil {
		abortWithError(c, asHTTPError(err))
		return
	}
	c.JSON(http.StatusOK, quizView(sess.Quiz))
}

func (h *Handler) SubmitQuiz(c *gin.Context) {
	var req quizAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, apperror.CodeInvalidInput, "request body must be JSON with an answer", err))
		return
	}

	sess := sessionFrom(c)
	if sess == nil {
		// Nothing was started from this browser, so the quiz is idle.
		sess = &UserSession{}
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := h.quiz.Submit(c.Request.Context(), &sess.Quiz, req.Answer); err != nil {
		abortWithError(c, asHTTPError(err))
		return
	}
	c.JSON(http.StatusOK, quizView(sess.Quiz))
}

func (h *Handler) EndQuiz(c *gin.Context) {
	sess := sessionFrom(c)
	if sess == nil {
		c.JSON(http.StatusOK, quizView(quiz.Session{}))
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	h.quiz.End(&sess.Quiz)
	c.JSON(http.StatusOK, quizView(sess.Quiz))
}

func (h *Handler) Rebuild(c *gin.Context) {
	report, err := h.builder.Build(c.Request.Context(), h.sourcePath)
	if err != nil {
		abortWithError(c, asHTTPError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"source":     report.Source,
		"documents":  report.Documents,
		"durationMs": report.Duration.Milliseconds(),
	})
}

// quizView hides the reference answer until the question has been answered.
func quizView(s quiz.Session) quizResponse {
	resp := quizResponse{State: s.State, Question: s.Question}
	if resp.State == "" {
		resp.State = quiz.StateIdle
	}
	if s.Score != nil {
		resp.Answer = s.Answer
		resp.Reference = s.Reference
		resp.Score = s.Score
		resp.Band = s.Band
		resp.Feedback = s.Band.Feedback()
	}
	return resp
}
