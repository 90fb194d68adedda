package patient

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-records/internal/handler"
	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
	"github.com/jwalitptl/clinic-records/pkg/httputil"
)

type Request struct {
	PatientCode    string    `json:"patient_code" binding:"omitempty,bizcode=patient"`
	FirstName      string    `json:"first_name" binding:"required,max=100"`
	LastName       string    `json:"last_name" binding:"required,max=100"`
	DateOfBirth    time.Time `json:"date_of_birth" binding:"required"`
	Gender         string    `json:"gender" binding:"required,max=10"`
	Address        string    `json:"address" binding:"max=500"`
	PhoneNumber    string    `json:"phone_number" binding:"max=20"`
	Email          string    `json:"email" binding:"omitempty,email"`
	NationalID     *string   `json:"national_id" binding:"omitempty,max=50"`
	MedicalHistory string    `json:"medical_history"`
	Allergies      string    `json:"allergies"`
}

func (r *Request) apply(p *model.Patient) {
	if r.PatientCode != "" {
		p.PatientCode = r.PatientCode
	}
	p.FirstName = r.FirstName
	p.LastName = r.LastName
	p.DateOfBirth = r.DateOfBirth
	p.Gender = r.Gender
	p.Address = r.Address
	p.PhoneNumber = r.PhoneNumber
	p.Email = r.Email
	p.NationalID = r.NationalID
	p.MedicalHistory = r.MedicalHistory
	p.Allergies = r.Allergies
}

type Handler struct {
	units handler.UnitFactory
}

func NewHandler(units handler.UnitFactory) *Handler {
	return &Handler{units: units}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.CreatePatient)
		patients.GET("", h.ListPatients)
		patients.GET("/:id", h.GetPatient)
		patients.GET("/code/:code", h.GetPatientByCode)
		patients.PUT("/:id", h.UpdatePatient)
		patients.DELETE("/:id", h.DeletePatient)

		patients.GET("/:id/records", h.ListMedicalRecords)
		patients.GET("/:id/appointments", h.ListAppointments)
	}
}

func (h *Handler) CreatePatient(c *gin.Context) {
	var req Request
	if err := handler.Bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		p := &model.Patient{}
		req.apply(p)
		if err := u.Patients().Add(p); err != nil {
			return err
		}
		if _, err := u.SaveChanges(c.Request.Context()); err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusCreated, p)
		return nil
	})
}

// ListPatients searches by ?q= or lists the patients of ?doctor_id=.
func (h *Handler) ListPatients(c *gin.Context) {
	doctorID, byDoctor, err := handler.QueryID(c, "doctor_id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		var (
			patients []*model.Patient
			err      error
		)
		if byDoctor {
			patients, err = u.Patients().GetByDoctor(c.Request.Context(), doctorID)
		} else {
			patients, err = u.Patients().Search(c.Request.Context(), c.Query("q"))
		}
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, patients)
		return nil
	})
}

func (h *Handler) GetPatient(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		p, err := u.Patients().GetByID(c.Request.Context(), id)
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, p)
		return nil
	})
}

func (h *Handler) GetPatientByCode(c *gin.Context) {
	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		p, err := u.Patients().GetByPatientCode(c.Request.Context(), c.Param("code"))
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, p)
		return nil
	})
}

func (h *Handler) UpdatePatient(c *gin.Context) {
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
		p, err := u.Patients().GetByID(ctx, id)
		if err != nil {
			return err
		}
		req.apply(p)
		if err := u.Patients().Update(p); err != nil {
			return err
		}
		if _, err := u.SaveChanges(ctx); err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, p)
		return nil
	})
}

// DeletePatient is refused while visit records or appointments reference the patient.
func (h *Handler) DeletePatient(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		ctx := c.Request.Context()
		if err := u.Patients().DeleteByID(ctx, id); err != nil {
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
		records, err := u.MedicalRecords().GetByPatient(c.Request.Context(), id)
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
		appointments, err := u.Appointments().GetByPatient(c.Request.Context(), id)
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, appointments)
		return nil
	})
}
