// Package clinical implements the authenticated domain endpoints the gateway
// protects: patients, doctors, and appointments. Every record is owned by the
// authenticated principal, and every query is scoped by that ownership; a
// principal can never read or modify another principal's records, and probing
// a foreign record id looks identical to probing one that does not exist.
package clinical

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/medgate/medgate/internal/db/models"
	"github.com/medgate/medgate/internal/db/repositories"
	"github.com/medgate/medgate/internal/middleware"
)

// PatientHandler serves /api/v1/patients.
type PatientHandler struct {
	patients *repositories.PatientRepository
}

// NewPatientHandler creates a PatientHandler.
func NewPatientHandler(patients *repositories.PatientRepository) *PatientHandler {
	return &PatientHandler{patients: patients}
}

type patientRequest struct {
	Name        string     `json:"name" binding:"required"`
	DateOfBirth *time.Time `json:"date_of_birth"`
}

// Create handles POST /api/v1/patients.
func (h *PatientHandler) Create(c *gin.Context) {
	var req patientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	patient := &models.Patient{
		PrincipalID: c.GetString(middleware.PrincipalIDKey),
		Name:        req.Name,
		DateOfBirth: req.DateOfBirth,
	}
	if err := h.patients.Create(c.Request.Context(), patient); err != nil {
		slog.Error("failed to create patient", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create patient"})
		return
	}

	c.JSON(http.StatusCreated, patient)
}

// List handles GET /api/v1/patients.
func (h *PatientHandler) List(c *gin.Context) {
	patients, err := h.patients.ListByPrincipal(c.Request.Context(), c.GetString(middleware.PrincipalIDKey))
	if err != nil {
		slog.Error("failed to list patients", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list patients"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"patients": patients})
}

// Get handles GET /api/v1/patients/:id.
func (h *PatientHandler) Get(c *gin.Context) {
	patient, err := h.patients.GetByID(c.Request.Context(), c.GetString(middleware.PrincipalIDKey), c.Param("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "patient not found"})
			return
		}
		slog.Error("failed to get patient", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve patient"})
		return
	}

	c.JSON(http.StatusOK, patient)
}

// Update handles PUT /api/v1/patients/:id.
func (h *PatientHandler) Update(c *gin.Context) {
	var req patientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	patient := &models.Patient{
		ID:          c.Param("id"),
		PrincipalID: c.GetString(middleware.PrincipalIDKey),
		Name:        req.Name,
		DateOfBirth: req.DateOfBirth,
	}
	if err := h.patients.Update(c.Request.Context(), patient); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "patient not found"})
			return
		}
		slog.Error("failed to update patient", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update patient"})
		return
	}

	c.JSON(http.StatusOK, patient)
}

// Delete handles DELETE /api/v1/patients/:id.
func (h *PatientHandler) Delete(c *gin.Context) {
	err := h.patients.Delete(c.Request.Context(), c.GetString(middleware.PrincipalIDKey), c.Param("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "patient not found"})
			return
		}
		slog.Error("failed to delete patient", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete patient"})
		return
	}

	c.Status(http.StatusNoContent)
}
