package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"go-face-analyzer/internal/config"
	apperrors "go-face-analyzer/internal/errors"
	"go-face-analyzer/internal/logger"
	"go-face-analyzer/internal/observer"
	"go-face-analyzer/internal/orchestrator"
	"go-face-analyzer/internal/service"
	"go-face-analyzer/pkg/models"
)

// Version is reported by /health. Overridden at link time.
var Version = "1.0.0"

// multipart and base64 overhead on top of the image limit
const bodyOverhead = 64 << 10

type handler struct {
	svc     service.AnalysisService
	metrics *observer.MetricsObserver
	cfg     *config.Config
}

func NewHandler(svc service.AnalysisService, metrics *observer.MetricsObserver, cfg *config.Config) http.Handler {
	r := gin.New()
	h := &handler{svc: svc, metrics: metrics, cfg: cfg}

	// Add middleware
	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(cfg.MaxRequestBodySize*4/3+bodyOverhead),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", h.healthCheck)
	r.GET("/metrics", h.getMetrics)

	api := r.Group("/api/sessions")
	api.POST("", h.createSession)
	api.DELETE("/:id", h.endSession)
	api.POST("/:id/images", h.submitImage)
	api.GET("/:id/state", h.getState)
	api.GET("/:id/results", h.getResults)
	api.DELETE("/:id/attempt", h.abandonAttempt)

	return r
}

func (h *handler) createSession(c *gin.Context) {
	id := h.svc.CreateSession()
	logger.WithSession(id).WithField("ip", c.ClientIP()).Info("Session created")
	c.JSON(http.StatusCreated, models.SessionResponse{SessionID: id})
}

func (h *handler) endSession(c *gin.Context) {
	if err := h.svc.EndSession(c.Param("id")); err != nil {
		abortWithError(c, "cannot end session", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) submitImage(c *gin.Context) {
	id := c.Param("id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.ImageFetchTimeout)
	defer cancel()

	var (
		st  orchestrator.PipelineState
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		st, err = h.submitUpload(ctx, c, id)
	} else {
		st, err = h.submitJSON(ctx, c, id)
	}
	if err != nil {
		abortWithError(c, "image not accepted", err)
		return
	}

	logger.WithSession(id).WithField("attempt_id", st.AttemptID).Info("Image accepted for analysis")
	c.JSON(http.StatusAccepted, stateResponse(id, st))
}

func (h *handler) submitUpload(ctx context.Context, c *gin.Context, id string) (orchestrator.PipelineState, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return orchestrator.PipelineState{}, err
		}
		return orchestrator.PipelineState{}, apperrors.NewValidationError("multipart field \"image\" is required", err)
	}
	if fh.Size > h.cfg.MaxRequestBodySize {
		return orchestrator.PipelineState{}, &http.MaxBytesError{Limit: h.cfg.MaxRequestBodySize}
	}

	f, err := fh.Open()
	if err != nil {
		return orchestrator.PipelineState{}, apperrors.NewValidationError("cannot read uploaded file", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return orchestrator.PipelineState{}, apperrors.NewValidationError("cannot read uploaded file", err)
	}
	return h.svc.SubmitBytes(ctx, id, data, c.PostForm("userId"))
}

func (h *handler) submitJSON(ctx context.Context, c *gin.Context, id string) (orchestrator.PipelineState, error) {
	var req models.SubmitImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return orchestrator.PipelineState{}, err
		}
		return orchestrator.PipelineState{}, apperrors.NewValidationError("invalid request format", err)
	}

	given := 0
	for _, set := range []bool{req.ImageData != "", req.SourceURL != "", req.Blob != nil} {
		if set {
			given++
		}
	}
	if given != 1 {
		return orchestrator.PipelineState{}, apperrors.NewValidationError("exactly one of imageData, sourceUrl or blob is required", nil)
	}

	switch {
	case req.SourceURL != "":
		return h.svc.SubmitURL(ctx, id, req.SourceURL, req.UserID)
	case req.Blob != nil:
		return h.svc.SubmitBlob(ctx, id, *req.Blob, req.UserID)
	default:
		return h.svc.Submit(ctx, id, models.AnalysisRequest{ImageData: req.ImageData, UserID: req.UserID})
	}
}

func (h *handler) getState(c *gin.Context) {
	id := c.Param("id")
	st, err := h.svc.State(id)
	if err != nil {
		abortWithError(c, "cannot read state", err)
		return
	}
	c.JSON(http.StatusOK, stateResponse(id, st))
}

// getResults is the display stage. Without a stored attempt the caller is
// sent back to acquisition.
func (h *handler) getResults(c *gin.Context) {
	data, err := h.svc.Results(c.Param("id"))
	if apperrors.IsKind(err, apperrors.KindMissingState) {
		c.Redirect(http.StatusSeeOther, h.cfg.AcquisitionPath)
		return
	}
	if err != nil {
		abortWithError(c, "cannot read results", err)
		return
	}
	c.JSON(http.StatusOK, models.ResultsResponse{ImageData: data.ImageData, Result: data.Result})
}

func (h *handler) abandonAttempt(c *gin.Context) {
	abandoned, err := h.svc.Abandon(c.Param("id"))
	if err != nil {
		abortWithError(c, "cannot abandon attempt", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"abandoned": abandoned})
}

func (h *handler) healthCheck(c *gin.Context) {
	providerMode := "synthetic"
	if h.cfg.Provider.Configured() {
		providerMode = "facepp"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "available",
		"version":  Version,
		"provider": providerMode,
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) getMetrics(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, h.metrics.GetMetrics())
}

func stateResponse(id string, st orchestrator.PipelineState) models.StateResponse {
	resp := models.StateResponse{
		SessionID:    id,
		State:        string(st.Phase),
		AttemptID:    st.AttemptID,
		Result:       st.Result,
		Notification: st.Notification,
	}
	if !st.StartedAt.IsZero() {
		resp.StartedAt = st.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if !st.FinishedAt.IsZero() {
		resp.FinishedAt = st.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	return resp
}

// Middleware and helper functions
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":             c.Request.Method,
			"path":               c.FullPath(),
			"status":             c.Writer.Status(),
			"processing_time_ms": time.Since(start).Milliseconds(),
			"ip":                 c.ClientIP(),
			"user_agent":         c.Request.UserAgent(),
		}).Debug("Request handled")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// abortWithError hands err to errorHandler, which writes the response.
func abortWithError(c *gin.Context, message string, err error) {
	_ = c.Error(err).SetMeta(message)
	c.Abort()
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			last := c.Errors.Last()
			message, ok := last.Meta.(string)
			if !ok {
				message = "request processing failed"
			}
			respondError(c, determineStatusCode(last.Err), message, last.Err)
		}
	}
}

func determineStatusCode(err error) int {
	// Check if it's a custom app error first
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}

	// Fallback to context-based errors
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	resp := models.ErrorResponse{
		Error:   http.StatusText(code),
		Kind:    string(apperrors.KindOf(err)),
		Message: fmt.Sprintf("%s: %v", message, err),
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
	}
	c.AbortWithStatusJSON(code, resp)
}
