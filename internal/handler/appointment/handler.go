package appointment

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-records/internal/handler"
	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
	"github.com/jwalitptl/clinic-records/pkg/httputil"
)

const defaultUpcomingDays = 7

type Request struct {
	AppointmentNumber string          `json:"appointment_number" binding:"omitempty,bizcode=appointment"`
	PatientID         int64           `json:"patient_id" binding:"required,gt=0"`
	DoctorID          int64           `json:"doctor_id" binding:"required,gt=0"`
	AppointmentDate   time.Time       `json:"appointment_date" binding:"required"`
	AppointmentTime   model.TimeOfDay `json:"appointment_time"`
	Reason            string          `json:"reason" binding:"max=500"`
	Notes             string          `json:"notes"`
	ConsultationFee   *float64        `json:"consultation_fee" binding:"omitempty,gte=0"`
}

type StatusRequest struct {
	Status model.AppointmentStatus `json:"status" binding:"required,oneof=Scheduled Confirmed Completed Cancelled NoShow"`
	Notes  *string                 `json:"notes"`
}

type Handler struct {
	units handler.UnitFactory
}

func NewHandler(units handler.UnitFactory) *Handler {
	return &Handler{units: units}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/upcoming", h.ListUpcoming)
		appointments.GET("/number/:number", h.GetAppointmentByNumber)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PUT("/:id/status", h.UpdateStatus)
		appointments.DELETE("/:id", h.DeleteAppointment)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req Request
	if err := handler.Bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		a := &model.Appointment{
			AppointmentNumber: req.AppointmentNumber,
			PatientID:         req.PatientID,
			DoctorID:          req.DoctorID,
			AppointmentDate:   req.AppointmentDate,
			AppointmentTime:   req.AppointmentTime,
			Reason:            req.Reason,
			Notes:             req.Notes,
			ConsultationFee:   req.ConsultationFee,
		}
		if err := u.Appointments().Add(a); err != nil {
			return err
		}
		if _, err := u.SaveChanges(c.Request.Context()); err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusCreated, a)
		return nil
	})
}

// ListAppointments returns the appointments on ?date= or between ?from= and ?to=.
func (h *Handler) ListAppointments(c *gin.Context) {
	day, onDay, err := handler.QueryDate(c, "date")
	if err != nil {
		_ = c.Error(err)
		return
	}
	from, hasFrom, err := handler.QueryDate(c, "from")
	if err != nil {
		_ = c.Error(err)
		return
	}
	to, hasTo, err := handler.QueryDate(c, "to")
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !onDay && !(hasFrom && hasTo) {
		_ = c.Error(apperrors.NewBadRequest("either date or from and to are required", nil))
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		var (
			appointments []*model.Appointment
			err          error
		)
		if onDay {
			appointments, err = u.Appointments().GetByDate(c.Request.Context(), day)
		} else {
			appointments, err = u.Appointments().GetByDateRange(c.Request.Context(), from, to)
		}
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, appointments)
		return nil
	})
}

// ListUpcoming returns appointments in the next ?days= days, seven by default.
func (h *Handler) ListUpcoming(c *gin.Context) {
	days := defaultUpcomingDays
	if raw, ok := c.GetQuery("days"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			_ = c.Error(apperrors.NewBadRequest("days must be an integer", err))
			return
		}
		days = n
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		appointments, err := u.Appointments().GetUpcoming(c.Request.Context(), days)
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, appointments)
		return nil
	})
}

func (h *Handler) GetAppointmentByNumber(c *gin.Context) {
	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		details, err := u.Appointments().GetByAppointmentNumber(c.Request.Context(), c.Param("number"))
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, details)
		return nil
	})
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		a, err := u.Appointments().GetByID(c.Request.Context(), id)
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, a)
		return nil
	})
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req StatusRequest
	if err := handler.Bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		ctx := c.Request.Context()
		a, err := u.Appointments().GetByID(ctx, id)
		if err != nil {
			return err
		}
		a.Status = req.Status
		if req.Notes != nil {
			a.Notes = *req.Notes
		}
		if err := u.Appointments().Update(a); err != nil {
			return err
		}
		if _, err := u.SaveChanges(ctx); err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, a)
		return nil
	})
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		ctx := c.Request.Context()
		if err := u.Appointments().DeleteByID(ctx, id); err != nil {
			return err
		}
		if _, err := u.SaveChanges(ctx); err != nil {
			return err
		}
		c.Status(http.StatusNoContent)
		return nil
	})
}
