package handlers

import (
	_ "embed"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/photolabel/internal/auth"
	"github.com/example/photolabel/internal/session"
	"github.com/example/photolabel/internal/usecase"
)

// MaxUploadSize caps a single uploaded photo.
const MaxUploadSize = 10 << 20

//go:embed web/index.html
var indexPage []byte

// Options carries the handler-level settings.
type Options struct {
	SessionSecret string
	SessionTTL    time.Duration
	SecureCookies bool
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.WorkflowUseCase, opts Options) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexPage)
	})

	router.POST("/api/session", func(c *gin.Context) {
		view, err := uc.Start(c.Request.Context())
		if err != nil {
			var provErr *usecase.ProviderError
			if errors.As(err, &provErr) && view != nil {
				// The session exists with the failure recorded; hand the
				// caller its cookie so the notice is visible.
				setSessionCookie(c, opts, view.SessionID)
				c.JSON(http.StatusBadGateway, view)
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start session"})
			return
		}

		setSessionCookie(c, opts, view.SessionID)
		c.JSON(http.StatusCreated, view)
	})

	protected := router.Group("/api/session/:id", auth.SessionMiddleware(opts.SessionSecret))

	protected.GET("", func(c *gin.Context) {
		view, err := uc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, nil, err)
			return
		}
		c.JSON(http.StatusOK, view)
	})

	protected.POST("/upload", func(c *gin.Context) {
		sessionID := c.Param("id")

		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
			return
		}
		files := form.File["image"]
		if len(files) == 0 {
			// Empty selection: the workflow does not move.
			view, err := uc.Get(c.Request.Context(), sessionID)
			if err != nil {
				respondError(c, nil, err)
				return
			}
			c.JSON(http.StatusOK, view)
			return
		}

		// Only the first selected file counts; extras are ignored.
		file := files[0]
		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}
		if declared := file.Header.Get("Content-Type"); declared != "" && !strings.HasPrefix(declared, "image/") {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only image uploads are accepted"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}
		if len(data) > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}

		view, err := uc.Upload(c.Request.Context(), sessionID, file.Filename, data)
		if err != nil {
			respondError(c, view, err)
			return
		}
		c.JSON(http.StatusOK, view)
	})

	protected.POST("/classify", func(c *gin.Context) {
		view, err := uc.Classify(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, view, err)
			return
		}
		c.JSON(http.StatusOK, view)
	})

	protected.POST("/reset", func(c *gin.Context) {
		view, err := uc.Reset(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, view, err)
			return
		}
		c.JSON(http.StatusOK, view)
	})

	protected.GET("/image", func(c *gin.Context) {
		data, err := uc.Preview(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, usecase.ErrConflict) || errors.Is(err, session.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no image to show"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render preview"})
			return
		}
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, "image/jpeg", data)
	})
}

func setSessionCookie(c *gin.Context, opts Options, sessionID string) {
	token, err := auth.IssueToken(opts.SessionSecret, sessionID, opts.SessionTTL)
	if err != nil {
		return
	}
	c.SetCookie(auth.CookieName, token, int(opts.SessionTTL.Seconds()), "/", "", opts.SecureCookies, true)
}

// respondError maps use case errors onto HTTP statuses. Provider failures
// carry the session view so the UI can show both the fatal notice and the
// state the session landed in.
func respondError(c *gin.Context, view *usecase.View, err error) {
	var provErr *usecase.ProviderError
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, usecase.ErrUnsupportedImage):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only image uploads are accepted"})
	case errors.Is(err, usecase.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &provErr):
		if view != nil {
			c.JSON(http.StatusBadGateway, view)
		} else {
			c.JSON(http.StatusBadGateway, gin.H{"error": provErr.Error()})
		}
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
