package service

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lk2023060901/member-qa-backend/internal/ingest"
	apperrors "github.com/lk2023060901/member-qa-backend/internal/pkg/errors"
	"github.com/lk2023060901/member-qa-backend/internal/pkg/logger"
	"github.com/lk2023060901/member-qa-backend/internal/pkg/response"
	"github.com/lk2023060901/member-qa-backend/internal/qa/retriever"
	"github.com/lk2023060901/member-qa-backend/internal/qa/types"
	"github.com/lk2023060901/member-qa-backend/internal/vectorstore"
)

// QAService exposes the question-answering pipeline over HTTP.
type QAService struct {
	orchestrator *retriever.Orchestrator
	pipeline     *ingest.Pipeline
	index        vectorstore.MessageIndex
	logger       *logger.Logger
	startedAt    time.Time
}

// NewQAService creates the HTTP service.
func NewQAService(orchestrator *retriever.Orchestrator, pipeline *ingest.Pipeline, index vectorstore.MessageIndex, lgr *logger.Logger) *QAService {
	if lgr == nil {
		lgr = logger.L()
	}

	return &QAService{
		orchestrator: orchestrator,
		pipeline:     pipeline,
		index:        index,
		logger:       lgr,
		startedAt:    time.Now(),
	}
}

// RegisterRoutes attaches all endpoints to the router.
func (s *QAService) RegisterRoutes(r *gin.Engine) {
	r.GET("/", s.Root)
	r.GET("/health", s.Health)
	r.GET("/status", s.Status)
	r.POST("/ask", s.Ask)
	r.POST("/reindex", s.Reindex)
}

// Root returns a service banner.
func (s *QAService) Root(c *gin.Context) {
	response.Success(c, gin.H{
		"service": "member-qa-backend",
		"message": "Ask questions about member messages via POST /ask",
		"uptime":  time.Since(s.startedAt).String(),
	})
}

// Health reports liveness, degraded when the last ingestion run failed.
func (s *QAService) Health(c *gin.Context) {
	lastError := s.pipeline.LastError()

	status := "healthy"
	if lastError != "" {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"last_error": lastError,
	})
}

// Status reports ingestion progress.
func (s *QAService) Status(c *gin.Context) {
	response.Success(c, s.pipeline.State())
}

// Ask answers one question against the indexed corpus.
func (s *QAService) Ask(c *gin.Context) {
	var req types.QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("invalid question request", zap.Error(err))
		response.ErrorWithCode(c, apperrors.ErrQAInvalidQuestion, err.Error())
		return
	}

	stats, err := s.index.Stats(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to read index stats", zap.Error(err))
		response.HandleError(c, apperrors.Wrap(err, apperrors.ErrQASearchFailed))
		return
	}
	if stats.TotalVectorCount == 0 {
		response.ErrorWithCode(c, apperrors.ErrQACorpusNotReady)
		return
	}

	answer, err := s.orchestrator.Answer(c.Request.Context(), &req)
	if err != nil {
		s.logger.Error("failed to answer question",
			zap.String("question", req.Question),
			zap.Error(err))
		response.HandleError(c, err)
		return
	}

	response.Success(c, answer)
}

// Reindex triggers a full ingestion run in the background. Returns 409 when
// a run is already active.
func (s *QAService) Reindex(c *gin.Context) {
	if !s.pipeline.ShouldIndex(c.Request.Context()) && c.Query("force") != "true" {
		response.Success(c, gin.H{
			"started": false,
			"message": "index already populated; pass force=true to rebuild",
		})
		return
	}

	if err := s.pipeline.StartAsync(context.Background()); err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"started": true,
		"message": "full reindex started",
	})
}
