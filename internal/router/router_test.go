package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/clinic-records/internal/config"
	"github.com/jwalitptl/clinic-records/internal/handler"
	"github.com/jwalitptl/clinic-records/internal/handler/appointment"
	"github.com/jwalitptl/clinic-records/internal/handler/doctor"
	"github.com/jwalitptl/clinic-records/internal/handler/health"
	"github.com/jwalitptl/clinic-records/internal/handler/patient"
	"github.com/jwalitptl/clinic-records/internal/handler/record"
	"github.com/jwalitptl/clinic-records/internal/handler/user"
	"github.com/jwalitptl/clinic-records/internal/repository/sqlstore"
	"github.com/jwalitptl/clinic-records/pkg/logger"
	"github.com/jwalitptl/clinic-records/pkg/metrics"
	"github.com/jwalitptl/clinic-records/pkg/security"
	"github.com/jwalitptl/clinic-records/pkg/validator"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code       int    `json:"code"`
		Kind       string `json:"kind"`
		Message    string `json:"message"`
		Constraint string `json:"constraint"`
	} `json:"error"`
}

type api struct {
	t      *testing.T
	engine *gin.Engine
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, validator.RegisterWithGin())

	ctx := context.Background()
	db, err := sqlstore.NewDB(ctx, config.DatabaseConfig{
		Driver: sqlstore.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "clinic.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlstore.Migrate(ctx, db))

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("clinic", "", reg)
	store := sqlstore.New(db, sqlstore.WithMetrics(m))
	units := handler.UnitFactory(store.OpenUnit)

	r := NewRouter(logger.Nop(), m, health.NewHandler(store), []Handler{
		patient.NewHandler(units),
		doctor.NewHandler(units),
		appointment.NewHandler(units),
		record.NewHandler(units),
		user.NewHandler(units, security.NewBcryptHasher(bcrypt.MinCost)),
	}, RouterConfig{
		MetricsPath:  "/metrics",
		Gatherer:     reg,
		MaxBodyBytes: 1 << 20,
	})
	r.Setup()
	return &api{t: t, engine: r.Engine()}
}

func (a *api) do(method, path string, body interface{}) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" && w.Code != http.StatusNoContent {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w.Code, env
}

func (a *api) create(path string, body interface{}, into interface{}) {
	a.t.Helper()
	code, env := a.do(http.MethodPost, path, body)
	require.Equal(a.t, http.StatusCreated, code, "%s: %+v", path, env.Error)
	require.NoError(a.t, json.Unmarshal(env.Data, into))
}

type created struct {
	ID                int64  `json:"id"`
	PatientCode       string `json:"patient_code"`
	DoctorCode        string `json:"doctor_code"`
	AppointmentNumber string `json:"appointment_number"`
	Status            string `json:"status"`
}

func patientBody(first, last string) map[string]interface{} {
	return map[string]interface{}{
		"first_name":    first,
		"last_name":     last,
		"date_of_birth": "1985-06-01T00:00:00Z",
		"gender":        "F",
	}
}

func doctorBody() map[string]interface{} {
	return map[string]interface{}{
		"first_name":     "Rui",
		"last_name":      "Costa",
		"specialization": "Cardiology",
	}
}

func TestPatientLifecycle(t *testing.T) {
	a := newAPI(t)

	body := patientBody("Ana", "Silva")
	body["national_id"] = "111"
	var p created
	a.create("/api/v1/patients", body, &p)
	assert.Equal(t, "P000001", p.PatientCode)

	code, env := a.do(http.MethodPost, "/api/v1/patients", body)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, env.Error.Constraint, "national_id")

	bad := patientBody("Rita", "Lopes")
	bad["patient_code"] = "D000001"
	code, _ = a.do(http.MethodPost, "/api/v1/patients", bad)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = a.do(http.MethodGet, "/api/v1/patients?q=silv", nil)
	require.Equal(t, http.StatusOK, code)
	var found []created
	require.NoError(t, json.Unmarshal(env.Data, &found))
	require.Len(t, found, 1)

	update := patientBody("Ana", "Souza")
	code, env = a.do(http.MethodPut, "/api/v1/patients/1", update)
	require.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodGet, "/api/v1/patients/code/P000001", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = a.do(http.MethodDelete, "/api/v1/patients/1", nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, env = a.do(http.MethodGet, "/api/v1/patients/1", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Error.Kind)

	code, _ = a.do(http.MethodGet, "/api/v1/patients/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRecordIsCreatedWithChildrenAtomically(t *testing.T) {
	a := newAPI(t)

	var p, d created
	a.create("/api/v1/patients", patientBody("Ana", "Silva"), &p)
	a.create("/api/v1/doctors", doctorBody(), &d)
	assert.Equal(t, "D000001", d.DoctorCode)

	recordBody := func(patientID int64) map[string]interface{} {
		return map[string]interface{}{
			"patient_id": patientID,
			"doctor_id":  d.ID,
			"visit_date": "2026-03-10T09:00:00Z",
			"diagnosis":  "Flu",
			"tests": []map[string]interface{}{
				{"test_name": "CBC", "test_date": "2026-03-10T09:30:00Z"},
			},
			"prescriptions": []map[string]interface{}{
				{"medication_name": "Ibuprofen", "dosage": "400mg", "frequency": "8h"},
			},
		}
	}

	code, env := a.do(http.MethodPost, "/api/v1/records", recordBody(9999))
	assert.Equal(t, http.StatusConflict, code, "unknown patient violates the foreign key")
	assert.Equal(t, "constraint_violation", env.Error.Kind)

	var details struct {
		Record struct {
			ID           int64  `json:"id"`
			RecordNumber string `json:"record_number"`
		} `json:"record"`
		Patient *created `json:"patient"`
		Tests   []struct {
			Status string `json:"status"`
		} `json:"tests"`
		Prescriptions []created `json:"prescriptions"`
	}
	a.create("/api/v1/records", recordBody(p.ID), &details)
	assert.Equal(t, "MR000001", details.Record.RecordNumber, "the failed attempt left no record behind")

	code, env = a.do(http.MethodGet, "/api/v1/records/1", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &details))
	require.NotNil(t, details.Patient)
	assert.Equal(t, p.ID, details.Patient.ID)
	require.Len(t, details.Tests, 1)
	assert.Equal(t, "Pending", details.Tests[0].Status)
	require.Len(t, details.Prescriptions, 1)
	assert.Equal(t, "Active", details.Prescriptions[0].Status)

	code, env = a.do(http.MethodDelete, "/api/v1/patients/1", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "medical_records.patient_id", env.Error.Constraint)

	code, _ = a.do(http.MethodDelete, "/api/v1/records/1", nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = a.do(http.MethodGet, "/api/v1/records/1", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = a.do(http.MethodDelete, "/api/v1/patients/1", nil)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestAppointmentEndpoints(t *testing.T) {
	a := newAPI(t)

	var p, d, appt created
	a.create("/api/v1/patients", patientBody("Ana", "Silva"), &p)
	a.create("/api/v1/doctors", doctorBody(), &d)
	a.create("/api/v1/appointments", map[string]interface{}{
		"patient_id":       p.ID,
		"doctor_id":        d.ID,
		"appointment_date": "2026-03-12T00:00:00Z",
		"appointment_time": "09:30",
	}, &appt)
	assert.Equal(t, "APT000001", appt.AppointmentNumber)
	assert.Equal(t, "Scheduled", appt.Status)

	code, env := a.do(http.MethodGet, "/api/v1/appointments/number/APT000001", nil)
	require.Equal(t, http.StatusOK, code)
	var details struct {
		Appointment struct {
			AppointmentTime string `json:"appointment_time"`
		} `json:"appointment"`
		Doctor created `json:"doctor"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &details))
	assert.Equal(t, "09:30:00", details.Appointment.AppointmentTime)
	assert.Equal(t, "D000001", details.Doctor.DoctorCode)

	code, env = a.do(http.MethodGet, "/api/v1/appointments?date=2026-03-12", nil)
	require.Equal(t, http.StatusOK, code)
	var onDay []created
	require.NoError(t, json.Unmarshal(env.Data, &onDay))
	assert.Len(t, onDay, 1)

	code, _ = a.do(http.MethodGet, "/api/v1/appointments", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do(http.MethodGet, "/api/v1/appointments/upcoming?days=-1", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = a.do(http.MethodPut, "/api/v1/appointments/1/status", map[string]interface{}{"status": "Confirmed"})
	require.Equal(t, http.StatusOK, code)
	var updated created
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "Confirmed", updated.Status)

	code, _ = a.do(http.MethodPut, "/api/v1/appointments/1/status", map[string]interface{}{"status": "Lost"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestUserPasswordIsHashedAndHidden(t *testing.T) {
	a := newAPI(t)

	var u created
	a.create("/api/v1/users", map[string]interface{}{
		"username":   "asilva",
		"email":      "ana@clinic.test",
		"password":   "correct horse",
		"first_name": "Ana",
		"last_name":  "Silva",
	}, &u)

	code, env := a.do(http.MethodGet, "/api/v1/users/username/asilva", nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(env.Data), "password")
	assert.Contains(t, string(env.Data), `"role":"User"`)

	code, _ = a.do(http.MethodPost, "/api/v1/users", map[string]interface{}{
		"username":   "rlopes",
		"email":      "rita@clinic.test",
		"password":   "short",
		"first_name": "Rita",
		"last_name":  "Lopes",
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealthAndMetrics(t *testing.T) {
	a := newAPI(t)

	code, _ := a.do(http.MethodGet, "/api/v1/health/ready", nil)
	assert.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "clinic_http_requests_total")
}
