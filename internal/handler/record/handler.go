package record

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-records/internal/handler"
	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
	"github.com/jwalitptl/clinic-records/pkg/httputil"
)

type TestRequest struct {
	TestName    string           `json:"test_name" binding:"required,max=200"`
	TestDate    time.Time        `json:"test_date" binding:"required"`
	TestResults string           `json:"test_results"`
	NormalRange string           `json:"normal_range"`
	Status      model.TestStatus `json:"status" binding:"omitempty,oneof=Pending Completed Abnormal"`
	Notes       string           `json:"notes"`
	TestCost    *float64         `json:"test_cost" binding:"omitempty,gte=0"`
}

func (r *TestRequest) build(recordID int64) *model.MedicalTest {
	return &model.MedicalTest{
		TestName:        r.TestName,
		MedicalRecordID: recordID,
		TestDate:        r.TestDate,
		TestResults:     r.TestResults,
		NormalRange:     r.NormalRange,
		Status:          r.Status,
		Notes:           r.Notes,
		TestCost:        r.TestCost,
	}
}

type PrescriptionRequest struct {
	MedicationName string   `json:"medication_name" binding:"required,max=200"`
	Dosage         string   `json:"dosage" binding:"required"`
	Frequency      string   `json:"frequency" binding:"required"`
	Duration       string   `json:"duration"`
	Instructions   string   `json:"instructions"`
	Quantity       *int     `json:"quantity" binding:"omitempty,gt=0"`
	UnitPrice      *float64 `json:"unit_price" binding:"omitempty,gte=0"`
}

func (r *PrescriptionRequest) build(recordID int64) *model.Prescription {
	return &model.Prescription{
		MedicationName:  r.MedicationName,
		MedicalRecordID: recordID,
		Dosage:          r.Dosage,
		Frequency:       r.Frequency,
		Duration:        r.Duration,
		Instructions:    r.Instructions,
		Quantity:        r.Quantity,
		UnitPrice:       r.UnitPrice,
	}
}

type Request struct {
	RecordNumber        string                `json:"record_number" binding:"omitempty,bizcode=medical_record"`
	PatientID           int64                 `json:"patient_id" binding:"required,gt=0"`
	DoctorID            int64                 `json:"doctor_id" binding:"required,gt=0"`
	VisitDate           time.Time             `json:"visit_date" binding:"required"`
	ChiefComplaint      string                `json:"chief_complaint"`
	PresentIllness      string                `json:"present_illness"`
	PhysicalExamination string                `json:"physical_examination"`
	Diagnosis           string                `json:"diagnosis"`
	Treatment           string                `json:"treatment"`
	Prescription        string                `json:"prescription"`
	Notes               string                `json:"notes"`
	ConsultationFee     *float64              `json:"consultation_fee" binding:"omitempty,gte=0"`
	Tests               []TestRequest         `json:"tests" binding:"dive"`
	Prescriptions       []PrescriptionRequest `json:"prescriptions" binding:"dive"`
}

type Handler struct {
	units handler.UnitFactory
}

func NewHandler(units handler.UnitFactory) *Handler {
	return &Handler{units: units}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	records := r.Group("/records")
	{
		records.POST("", h.CreateRecord)
		records.GET("", h.ListRecords)
		records.GET("/number/:number", h.GetRecordByNumber)
		records.GET("/:id", h.GetRecord)
		records.DELETE("/:id", h.DeleteRecord)

		records.POST("/:id/tests", h.AddTest)
		records.POST("/:id/prescriptions", h.AddPrescription)
	}
}

// CreateRecord stores a visit together with its tests and prescriptions.
// The children need the record id, so the record is flushed first inside
// an explicit transaction and everything commits or rolls back together.
func (h *Handler) CreateRecord(c *gin.Context) {
	var req Request
	if err := handler.Bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		ctx := c.Request.Context()
		if err := u.BeginTransaction(ctx); err != nil {
			return err
		}

		record := &model.MedicalRecord{
			RecordNumber:        req.RecordNumber,
			PatientID:           req.PatientID,
			DoctorID:            req.DoctorID,
			VisitDate:           req.VisitDate,
			ChiefComplaint:      req.ChiefComplaint,
			PresentIllness:      req.PresentIllness,
			PhysicalExamination: req.PhysicalExamination,
			Diagnosis:           req.Diagnosis,
			Treatment:           req.Treatment,
			Prescription:        req.Prescription,
			Notes:               req.Notes,
			ConsultationFee:     req.ConsultationFee,
		}
		if err := u.MedicalRecords().Add(record); err != nil {
			return err
		}
		if _, err := u.SaveChanges(ctx); err != nil {
			return err
		}

		tests := make([]*model.MedicalTest, 0, len(req.Tests))
		for i := range req.Tests {
			tests = append(tests, req.Tests[i].build(record.ID))
		}
		prescriptions := make([]*model.Prescription, 0, len(req.Prescriptions))
		for i := range req.Prescriptions {
			prescriptions = append(prescriptions, req.Prescriptions[i].build(record.ID))
		}
		if err := u.MedicalTests().AddRange(tests); err != nil {
			return err
		}
		if err := u.Prescriptions().AddRange(prescriptions); err != nil {
			return err
		}
		if _, err := u.SaveChanges(ctx); err != nil {
			return err
		}
		if err := u.Commit(ctx); err != nil {
			return err
		}

		httputil.RespondWithSuccess(c, http.StatusCreated, &model.MedicalRecordDetails{
			Record:        record,
			Tests:         tests,
			Prescriptions: prescriptions,
		})
		return nil
	})
}

// ListRecords returns visits between ?from= and ?to=, newest first.
func (h *Handler) ListRecords(c *gin.Context) {
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
	if !hasFrom || !hasTo {
		_ = c.Error(apperrors.NewBadRequest("from and to are required", nil))
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		// to is a calendar day, so include all of it
		records, err := u.MedicalRecords().GetByDateRange(c.Request.Context(), from, to.Add(24*time.Hour-time.Nanosecond))
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, records)
		return nil
	})
}

func (h *Handler) GetRecord(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		details, err := u.MedicalRecords().GetWithDetails(c.Request.Context(), id)
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, details)
		return nil
	})
}

func (h *Handler) GetRecordByNumber(c *gin.Context) {
	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		record, err := u.MedicalRecords().GetByRecordNumber(c.Request.Context(), c.Param("number"))
		if err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusOK, record)
		return nil
	})
}

// DeleteRecord also deletes the record's tests and prescriptions.
func (h *Handler) DeleteRecord(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		ctx := c.Request.Context()
		if err := u.MedicalRecords().DeleteByID(ctx, id); err != nil {
			return err
		}
		if _, err := u.SaveChanges(ctx); err != nil {
			return err
		}
		c.Status(http.StatusNoContent)
		return nil
	})
}

func (h *Handler) AddTest(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req TestRequest
	if err := handler.Bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		ctx := c.Request.Context()
		if _, err := u.MedicalRecords().GetByID(ctx, id); err != nil {
			return err
		}
		test := req.build(id)
		if err := u.MedicalTests().Add(test); err != nil {
			return err
		}
		if _, err := u.SaveChanges(ctx); err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusCreated, test)
		return nil
	})
}

func (h *Handler) AddPrescription(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req PrescriptionRequest
	if err := handler.Bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	handler.WithUnit(c, h.units, func(u repository.UnitOfWork) error {
		ctx := c.Request.Context()
		if _, err := u.MedicalRecords().GetByID(ctx, id); err != nil {
			return err
		}
		rx := req.build(id)
		if err := u.Prescriptions().Add(rx); err != nil {
			return err
		}
		if _, err := u.SaveChanges(ctx); err != nil {
			return err
		}
		httputil.RespondWithSuccess(c, http.StatusCreated, rx)
		return nil
	})
}
