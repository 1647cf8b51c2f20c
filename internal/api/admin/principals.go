// Package admin implements the internal privileged API: principal
// provisioning, credential rotation, and principal deletion. These routes are
// mounted under /internal/v1 behind the trusted-network and admin-token guard,
// never behind the API key auth guard.
package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/medgate/medgate/internal/auth"
	"github.com/medgate/medgate/internal/cache"
	"github.com/medgate/medgate/internal/db/repositories"
)

// Handler bundles the dependencies of the internal principal endpoints.
type Handler struct {
	principals *repositories.PrincipalRepository
	hasher     *auth.Hasher
	keyCache   cache.KeyCache
	keyPrefix  string
}

// NewHandler creates an admin Handler.
func NewHandler(principals *repositories.PrincipalRepository, hasher *auth.Hasher, keyCache cache.KeyCache, keyPrefix string) *Handler {
	return &Handler{
		principals: principals,
		hasher:     hasher,
		keyCache:   keyCache,
		keyPrefix:  keyPrefix,
	}
}

// createPrincipalRequest is the body for POST /internal/v1/principals.
type createPrincipalRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// CreatePrincipal handles POST /internal/v1/principals. The new principal has
// no credential yet; a separate rotation call issues the first key.
func (h *Handler) CreatePrincipal(c *gin.Context) {
	var req createPrincipalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a valid email is required"})
		return
	}

	principal, err := h.principals.Create(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "a principal with this email already exists"})
			return
		}
		slog.Error("failed to create principal", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create principal"})
		return
	}

	slog.Info("principal created", "principal_id", principal.ID)
	c.JSON(http.StatusCreated, principal)
}

// GetPrincipal handles GET /internal/v1/principals/:id.
func (h *Handler) GetPrincipal(c *gin.Context) {
	principal, err := h.principals.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "principal not found"})
			return
		}
		slog.Error("failed to get principal", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve principal"})
		return
	}

	c.JSON(http.StatusOK, principal)
}

// RotateCredential handles PUT /internal/v1/principals/:id/credential.
// It issues a fresh API key, stores only its digest, and evicts the previous
// digest from the key cache so the old key stops working immediately rather
// than after the cache TTL. The raw key appears in this response and nowhere
// else; it cannot be retrieved again.
func (h *Handler) RotateCredential(c *gin.Context) {
	id := c.Param("id")

	rawKey, err := auth.GenerateAPIKey(h.keyPrefix)
	if err != nil {
		slog.Error("failed to generate API key", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue credential"})
		return
	}
	digest := h.hasher.Hash(rawKey)

	oldDigest, err := h.principals.SetCredential(c.Request.Context(), id, digest)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "principal not found"})
			return
		}
		slog.Error("failed to store credential", "principal_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue credential"})
		return
	}

	// Cache eviction failure is logged, not returned: the credential rotation
	// already committed, and the stale entry expires with the TTL.
	if oldDigest != "" {
		if err := h.keyCache.Delete(c.Request.Context(), oldDigest); err != nil {
			slog.Warn("failed to evict rotated credential from key cache",
				"principal_id", id, "error", err)
		}
	}

	slog.Info("credential rotated", "principal_id", id, "rotation", oldDigest != "")
	c.JSON(http.StatusOK, gin.H{
		"principal_id": id,
		"api_key":      rawKey,
		"issued_at":    time.Now().UTC(),
	})
}

// DeletePrincipal handles DELETE /internal/v1/principals/:id. The principal
// and all its clinical records go in one transaction, and the credential is
// evicted from the key cache so deleted principals lose access immediately.
func (h *Handler) DeletePrincipal(c *gin.Context) {
	id := c.Param("id")

	digest, err := h.principals.DeleteCascade(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "principal not found"})
			return
		}
		slog.Error("failed to delete principal", "principal_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete principal"})
		return
	}

	if digest != "" {
		if err := h.keyCache.Delete(c.Request.Context(), digest); err != nil {
			slog.Warn("failed to evict deleted principal's credential from key cache",
				"principal_id", id, "error", err)
		}
	}

	slog.Info("principal deleted", "principal_id", id)
	c.Status(http.StatusNoContent)
}
