// Package httpapi exposes the course assistant over HTTP: a query endpoint
// for the chat frontend and a course analytics endpoint.
package httpapi

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/victhorio/sage/rag"
)

// Assistant is the part of rag.System the HTTP layer needs.
type Assistant interface {
	Query(ctx context.Context, query, sessionID string) (string, []rag.Source, error)
	NewSessionID() string
	Analytics() rag.Analytics
}

// Server wraps a gin engine around an Assistant.
type Server struct {
	engine *gin.Engine
	sys    Assistant
}

func NewServer(sys Assistant) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery(), cors())

	s := &Server{engine: engine, sys: sys}

	engine.GET("/", s.root)
	engine.POST("/api/query", s.query)
	engine.GET("/api/courses", s.courses)

	return s
}

// Handler returns the underlying http.Handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	log.Info("serving", "addr", addr)
	return s.engine.Run(addr)
}

type queryRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"session_id"`
}

type queryResponse struct {
	Answer    string       `json:"answer"`
	Sources   []rag.Source `json:"sources"`
	SessionID string       `json:"session_id"`
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Course Materials RAG System API"})
}

func (s *Server) query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.sys.NewSessionID()
	}

	answer, sources, err := s.sys.Query(c.Request.Context(), req.Query, sessionID)
	if err != nil {
		log.Error("query failed", "session", sessionID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	if sources == nil {
		sources = []rag.Source{}
	}

	c.JSON(http.StatusOK, queryResponse{
		Answer:    answer,
		Sources:   sources,
		SessionID: sessionID,
	})
}

func (s *Server) courses(c *gin.Context) {
	c.JSON(http.StatusOK, s.sys.Analytics())
}

// cors allows the dev frontend to call the API from another origin.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
