package doctor

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

type Request struct {
	DoctorCode        string     `json:"doctor_code" binding:"omitempty,bizcode=doctor"`
	FirstName         string     `json:"first_name" binding:"required,max=100"`
	LastName          string     `json:"last_name" binding:"required,max=100"`
	Specialization    string     `json:"specialization" binding:"required,max=100"`
	LicenseNumber     *string    `json:"license_number" binding:"omitempty,max=50"`
	PhoneNumber       string     `json:"phone_number" binding:"max=20"`
	Email             string     `json:"email" binding:"omitempty,email"`
	Address           string     `json:"address" binding:"max=500"`
	LicenseExpiryDate *time.Time `json:"license_expiry_date"`
	Qualifications    string     `json:"qualifications"`
	// IsActive defaults to true when omitted.
	IsActive *bool `json:"is_active"`
}

func (r *Request) apply(d *model.Doctor) {
	if r.DoctorCode != "" {
		d.DoctorCode = r.DoctorCode
	}
	d.FirstName = r.FirstName
	d.LastName = r.LastName
	d.Specialization = r.Specialization
	d.LicenseNumber = r.LicenseNumber
	d.PhoneNumber = r.PhoneNumber
	d.Email = r.Email
	d.Address = r.Address
	d.LicenseExpiryDate = r.LicenseExpiryDate
	d.Qualifications = r.Qualifications
	if r.IsActive != nil {
		d.IsActive = *r.IsActive
	}
}

type Handler struct {
	units handler.UnitFactory
}

func NewHandler(units handler.UnitFactory) *Handler {
	return &Handler{units: units}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	doctors := r.Group("/doctors")
	{
		doctors.POST("", h.CreateDoctor)
		doctors.GET("", h.ListDoctors)
		doctors.GET("/:id", h.GetDoctor)
		doctors.GET("/code/:code", h.GetDoctorByCode)
		doctors.PUT("/:id", h.UpdateDoctor)
		doctors.DELETE("/:id", h.DeleteDoctor)

		doctors.GET("/:id/records", h.ListMedicalRecords)
		doctors.GET("/:id/appointments", h.ListAppointments)
	}
}

func (h *Handler) CreateDoctor(c *gin.Context) {
	var req Request
	if err := handler.Bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		d := &model.Doctor{IsActive: true}
		req.apply(d)
		if err := u.Doctors().Add(d); err != nil {
			return err
		}
		if _, err := u.SaveChanges(c.Request.Context()); err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusCreated, d)
		return nil
	})
}

// ListDoctors filters by ?specialization= or ?active=true, otherwise lists all.
func (h *Handler) ListDoctors(c *gin.Context) {
	activeOnly := false
	if raw, ok := c.GetQuery("active"); ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			_ = c.Error(apperrors.NewBadRequest("active must be a boolean", err))
			return
		}
		activeOnly = v
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		ctx := c.Request.Context()
		var (
			doctors []*model.Doctor
			err     error
		)
		switch spec, ok := c.GetQuery("specialization"); {
		case ok:
			doctors, err = u.Doctors().GetBySpecialization(ctx, spec)
		case activeOnly:
			doctors, err = u.Doctors().GetActive(ctx)
		default:
			doctors, err = u.Doctors().GetAll(ctx)
		}
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, doctors)
		return nil
	})
}

func (h *Handler) GetDoctor(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		d, err := u.Doctors().GetByID(c.Request.Context(), id)
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, d)
		return nil
	})
}

func (h *Handler) GetDoctorByCode(c *gin.Context) {
	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		d, err := u.Doctors().GetByDoctorCode(c.Request.Context(), c.Param("code"))
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, d)
		return nil
	})
}

func (h *Handler) UpdateDoctor(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req Request
	if err := handler.Bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		ctx := c.Request.Context()
		d, err := u.Doctors().GetByID(ctx, id)
		if err != nil {
			return err
		}
		req.apply(d)
		if err := u.Doctors().Update(d); err != nil {
			return err
		}
		if _, err := u.SaveChanges(ctx); err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, d)
		return nil
	})
}

// DeleteDoctor is refused while visit records or appointments reference the
// doctor. Linked user accounts are detached.
func (h *Handler) DeleteDoctor(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		ctx := c.Request.Context()
		if err := u.Doctors().DeleteByID(ctx, id); err != nil {
			return err
		}
		if _, err := u.SaveChanges(ctx); err != nil {
			return err
		}
		c.Status(http.StatusNoContent)
		return nil
	})
}

func (h *Handler) ListMedicalRecords(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		records, err := u.MedicalRecords().GetByDoctor(c.Request.Context(), id)
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, records)
		return nil
	})
}

func (h *Handler) ListAppointments(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		appointments, err := u.Appointments().GetByDoctor(c.Request.Context(), id)
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, appointments)
		return nil
	})
}
