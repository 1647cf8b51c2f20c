package clinical

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/medgate/medgate/internal/db/models"
	"github.com/medgate/medgate/internal/db/repositories"
	"github.com/medgate/medgate/internal/middleware"
)

// DoctorHandler serves /api/v1/doctors.
type DoctorHandler struct {
	doctors *repositories.DoctorRepository
}

// NewDoctorHandler creates a DoctorHandler.
func NewDoctorHandler(doctors *repositories.DoctorRepository) *DoctorHandler {
	return &DoctorHandler{doctors: doctors}
}

type doctorRequest struct {
	Name       string  `json:"name" binding:"required"`
	Speciality *string `json:"speciality"`
}

// Create handles POST /api/v1/doctors.
func (h *DoctorHandler) Create(c *gin.Context) {
	var req doctorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	doctor := &models.Doctor{
		PrincipalID: c.GetString(middleware.PrincipalIDKey),
		Name:        req.Name,
		Speciality:  req.Speciality,
	}
	if err := h.doctors.Create(c.Request.Context(), doctor); err != nil {
		slog.Error("failed to create doctor", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create doctor"})
		return
	}

	c.JSON(http.StatusCreated, doctor)
}

// List handles GET /api/v1/doctors.
func (h *DoctorHandler) List(c *gin.Context) {
	doctors, err := h.doctors.ListByPrincipal(c.Request.Context(), c.GetString(middleware.PrincipalIDKey))
	if err != nil {
		slog.Error("failed to list doctors", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list doctors"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"doctors": doctors})
}

// Get handles GET /api/v1/doctors/:id.
func (h *DoctorHandler) Get(c *gin.Context) {
	doctor, err := h.doctors.GetByID(c.Request.Context(), c.GetString(middleware.PrincipalIDKey), c.Param("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "doctor not found"})
			return
		}
		slog.Error("failed to get doctor", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve doctor"})
		return
	}

	c.JSON(http.StatusOK, doctor)
}

// Delete handles DELETE /api/v1/doctors/:id.
func (h *DoctorHandler) Delete(c *gin.Context) {
	err := h.doctors.Delete(c.Request.Context(), c.GetString(middleware.PrincipalIDKey), c.Param("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "doctor not found"})
			return
		}
		slog.Error("failed to delete doctor", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete doctor"})
		return
	}

	c.Status(http.StatusNoContent)
}
