package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"faq-rag/internal/config"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg config.ServerConfig, handler *Handler, sessions *SessionStore) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestLogger(),
		errorHandlingMiddleware(),
	)

	router.GET("/healthz", handler.Health)

	api := router.Group("/api/v1")
	api.Use(sessionMiddleware(sessions, cfg.CookieSecure))
	{
		api.GET("/status", handler.Status)
		api.POST("/login", handler.Login)
		api.POST("/logout", handler.Logout)
		api.POST("/answer", handler.Answer)
		api.POST("/quiz/start", handler.StartQuiz)
		api.POST("/quiz/answer", handler.SubmitQuiz)
		api.POST("/quiz/end", handler.EndQuiz)

		admin := api.Group("/admin")
		admin.Use(requireAdmin())
		admin.POST("/rebuild", handler.Rebuild)
	}

	return &http.Server{
		Addr:           cfg.Address,
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Int64("latency_ms", time.Since(start).Milliseconds()).
			Msg("http request")
	}
}

func errorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		httpErr := asHTTPError(c.Errors.Last().Err)
		message := httpErr.Message
		if message == "" {
			message = httpErr.Error()
		}

		event := log.Warn()
		if httpErr.Status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.Str("code", httpErr.Code).Int("status", httpErr.Status).Str("path", c.Request.URL.Path).Err(httpErr.Err).Msg("request failed")

		c.JSON(httpErr.Status, gin.H{
			"error": gin.H{
				"code":    httpErr.Code,
				"message": message,
			},
		})
	}
}
