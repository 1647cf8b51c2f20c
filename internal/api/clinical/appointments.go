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

// AppointmentHandler serves /api/v1/appointments.
type AppointmentHandler struct {
	appointments *repositories.AppointmentRepository
	patients     *repositories.PatientRepository
	doctors      *repositories.DoctorRepository
}

// NewAppointmentHandler creates an AppointmentHandler.
func NewAppointmentHandler(
	appointments *repositories.AppointmentRepository,
	patients *repositories.PatientRepository,
	doctors *repositories.DoctorRepository,
) *AppointmentHandler {
	return &AppointmentHandler{
		appointments: appointments,
		patients:     patients,
		doctors:      doctors,
	}
}

type createAppointmentRequest struct {
	PatientID     string    `json:"patient_id" binding:"required"`
	DoctorID      string    `json:"doctor_id" binding:"required"`
	ScheduledDate time.Time `json:"scheduled_date" binding:"required"`
}

type transitionRequest struct {
	Status string `json:"status" binding:"required"`
}

// Create handles POST /api/v1/appointments. Both referenced records must be
// owned by the caller; a foreign or unknown patient/doctor id is a 404, the
// same answer a missing record gives.
func (h *AppointmentHandler) Create(c *gin.Context) {
	var req createAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "patient_id, doctor_id, and scheduled_date are required"})
		return
	}

	principalID := c.GetString(middleware.PrincipalIDKey)
	ctx := c.Request.Context()

	if _, err := h.patients.GetByID(ctx, principalID, req.PatientID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "patient not found"})
			return
		}
		slog.Error("failed to resolve patient for appointment", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create appointment"})
		return
	}
	if _, err := h.doctors.GetByID(ctx, principalID, req.DoctorID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "doctor not found"})
			return
		}
		slog.Error("failed to resolve doctor for appointment", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create appointment"})
		return
	}

	appt := &models.Appointment{
		PrincipalID:   principalID,
		PatientID:     req.PatientID,
		DoctorID:      req.DoctorID,
		ScheduledDate: req.ScheduledDate,
	}
	if err := h.appointments.Create(ctx, appt); err != nil {
		slog.Error("failed to create appointment", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create appointment"})
		return
	}

	c.JSON(http.StatusCreated, appt)
}

// List handles GET /api/v1/appointments.
func (h *AppointmentHandler) List(c *gin.Context) {
	appts, err := h.appointments.ListByPrincipal(c.Request.Context(), c.GetString(middleware.PrincipalIDKey))
	if err != nil {
		slog.Error("failed to list appointments", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list appointments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"appointments": appts})
}

// Get handles GET /api/v1/appointments/:id.
func (h *AppointmentHandler) Get(c *gin.Context) {
	appt, err := h.appointments.GetByID(c.Request.Context(), c.GetString(middleware.PrincipalIDKey), c.Param("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "appointment not found"})
			return
		}
		slog.Error("failed to get appointment", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve appointment"})
		return
	}

	c.JSON(http.StatusOK, appt)
}

// Transition handles PUT /api/v1/appointments/:id/status: pending → done or
// pending → cancelled. An appointment already in a terminal state answers 404,
// same as one that does not exist; the state machine never reopens.
func (h *AppointmentHandler) Transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	if req.Status != models.AppointmentDone && req.Status != models.AppointmentCancelled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be done or cancelled"})
		return
	}

	id := c.Param("id")
	err := h.appointments.Transition(c.Request.Context(), c.GetString(middleware.PrincipalIDKey), id, req.Status)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no pending appointment with this id"})
			return
		}
		slog.Error("failed to transition appointment", "appointment_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update appointment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
}
