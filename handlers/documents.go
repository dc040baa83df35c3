// Package handlers exposes the document store over HTTP. The handlers are a
// thin boundary: they bind JSON, call the store service and translate its
// error taxonomy to status codes. Authentication, CSRF and rate limiting are
// outside this service.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mdvault/mdvault/internal/docstore"
	"github.com/mdvault/mdvault/internal/docstore/service"
)

type DocumentHandler struct {
	svc *service.Service
}

func NewDocumentHandler(svc *service.Service) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Register mounts the document routes on r.
func (h *DocumentHandler) Register(r *gin.Engine) {
	r.GET("/api/documents", h.list)
	r.POST("/api/documents", h.create)
	r.GET("/api/documents/:slug", h.get)
	r.PATCH("/api/documents/:slug", h.update)
	r.DELETE("/api/documents/:slug", h.remove)
	r.GET("/api/documents/:slug/versions", h.versions)
	r.POST("/api/documents/:slug/revert", h.revert)
	r.GET("/api/trash", h.listTrash)
	r.POST("/api/trash/:slug/restore", h.restore)
	r.DELETE("/api/trash/:slug/:trashedAt", h.purge)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, docstore.ErrInvalidSlug):
		return http.StatusBadRequest
	case errors.Is(err, docstore.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, docstore.ErrNotFoundInTrash):
		return http.StatusNotFound
	case errors.Is(err, docstore.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, docstore.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortErr(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (h *DocumentHandler) list(c *gin.Context) {
	docs, err := h.svc.ListActive(c.Request.Context())
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *DocumentHandler) create(c *gin.Context) {
	var req struct {
		Slug        string `json:"slug"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	doc, err := h.svc.Create(c.Request.Context(), req.Slug, req.Title, req.Description, req.Content)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *DocumentHandler) get(c *gin.Context) {
	doc, err := h.svc.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) update(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
		Message string `json:"message"`
		Author  string `json:"author"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	doc, err := h.svc.Update(c.Request.Context(), c.Param("slug"), req.Content, req.Message, req.Author)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) remove(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("slug")); err != nil {
		abortErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DocumentHandler) versions(c *gin.Context) {
	vs, err := h.svc.GetVersions(c.Request.Context(), c.Param("slug"))
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, vs)
}

func (h *DocumentHandler) revert(c *gin.Context) {
	var req struct {
		VersionID int64 `json:"versionId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	doc, err := h.svc.Revert(c.Request.Context(), c.Param("slug"), req.VersionID)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) listTrash(c *gin.Context) {
	entries, err := h.svc.ListTrash(c.Request.Context())
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *DocumentHandler) restore(c *gin.Context) {
	doc, err := h.svc.Restore(c.Request.Context(), c.Param("slug"))
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) purge(c *gin.Context) {
	ts, err := strconv.ParseInt(c.Param("trashedAt"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trashedAt must be a unix millisecond timestamp"})
		return
	}
	if err := h.svc.DeleteFromTrash(c.Request.Context(), c.Param("slug"), ts); err != nil {
		abortErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
