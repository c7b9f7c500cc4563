package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/ekyc/internal/challenge"
	"github.com/example/ekyc/internal/repository"
	"github.com/example/ekyc/internal/session"
	"github.com/example/ekyc/internal/workflow"
)

// MaxUploadSize bounds a single image upload.
const MaxUploadSize = 8 << 20

// DispositionReader serves the audit trail behind the dispositions route.
type DispositionReader interface {
	FindBySession(ctx context.Context, sessionID string) ([]*repository.DispositionLog, error)
}

// RegisterRoutes wires the HTTP handlers to the Gin router. A nil audit
// reader disables the dispositions route.
func RegisterRoutes(router *gin.Engine, engine *workflow.Engine, challenges *challenge.Manager, audit DispositionReader, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	kyc := router.Group("/kyc", authMiddleware)

	kyc.POST("/session", func(c *gin.Context) {
		s := engine.CreateSession(c.Request.Context())
		c.JSON(http.StatusCreated, gin.H{
			"session_id": s.ID,
			"status":     s.Status,
		})
	})

	kyc.GET("/session/:id", func(c *gin.Context) {
		snap, err := engine.GetSession(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	if audit != nil {
		kyc.GET("/session/:id/dispositions", func(c *gin.Context) {
			logs, err := audit.FindBySession(c.Request.Context(), c.Param("id"))
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"dispositions": logs})
		})
	}

	kyc.POST("/session/:id/front", func(c *gin.Context) {
		data, ok := readImage(c)
		if !ok {
			return
		}
		result, err := engine.SubmitFrontID(c.Request.Context(), c.Param("id"), data)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": result.Status, "data": result.Data})
	})

	kyc.POST("/session/:id/back", func(c *gin.Context) {
		data, ok := readImage(c)
		if !ok {
			return
		}
		result, err := engine.SubmitBackID(c.Request.Context(), c.Param("id"), data)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": result.Status, "data": result.Data})
	})

	kyc.POST("/session/:id/selfie", func(c *gin.Context) {
		data, ok := readImage(c)
		if !ok {
			return
		}
		result, err := engine.SubmitSelfie(c.Request.Context(), c.Param("id"), data)
		if err != nil {
			if errors.Is(err, workflow.ErrCollaboratorRejected) {
				// The session reverted to the retryable status; tell the
				// client where it stands alongside the reason.
				c.JSON(http.StatusBadRequest, gin.H{
					"status": session.StatusAwaitingSelfie,
					"error":  err.Error(),
				})
				return
			}
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": result.Status})
	})

	kyc.POST("/session/:id/confirm-active-liveness", func(c *gin.Context) {
		result, err := engine.ConfirmActiveLiveness(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": result.Status})
	})

	kyc.POST("/session/:id/verify-final", func(c *gin.Context) {
		result, err := engine.RunFinalVerification(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		payload := gin.H{
			"success":      result.Success,
			"final_status": result.FinalStatus,
		}
		if result.Reason != "" {
			payload["reason"] = result.Reason
		}
		if result.Result != nil {
			payload["result"] = result.Result
		}
		c.JSON(http.StatusOK, payload)
	})

	kyc.POST("/session/:id/challenge/start", func(c *gin.Context) {
		instruction := challenges.Start(c.Param("id"))
		c.JSON(http.StatusOK, gin.H{
			"status":      challenge.OutcomeInProgress,
			"instruction": instruction,
		})
	})

	kyc.POST("/session/:id/challenge/frame", func(c *gin.Context) {
		data, ok := readImage(c)
		if !ok {
			return
		}
		result, err := challenges.Submit(c.Request.Context(), c.Param("id"), data)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
}

// readImage pulls the uploaded "image" form file, enforcing size and content
// type. It writes the error response itself and reports success.
func readImage(c *gin.Context) ([]byte, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return nil, false
	}
	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
		return nil, false
	}
	if !supportedImageType(file.Header.Get("Content-Type")) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported image content type"})
		return nil, false
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return nil, false
	}
	if len(data) > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
		return nil, false
	}
	return data, true
}

func supportedImageType(contentType string) bool {
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/png", "image/webp":
		return true
	}
	// Browsers sometimes omit the part content type for camera captures.
	return contentType == ""
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, challenge.ErrNoActiveChallenge):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrMissingData):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrCollaboratorRejected):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrCollaboratorUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
