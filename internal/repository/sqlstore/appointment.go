package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
)

type appointmentRepository struct {
	repo[model.Appointment, *model.Appointment]
}

var _ repository.AppointmentRepository = (*appointmentRepository)(nil)

type appointmentRow struct {
	model.Appointment
	Patient model.Patient `db:"patient"`
	Doctor  model.Doctor  `db:"doctor"`
}

// GetByAppointmentNumber returns the appointment with its patient and doctor.
func (r *appointmentRepository) GetByAppointmentNumber(ctx context.Context, number string) (*model.AppointmentDetails, error) {
	query := r.u.store.rebind(`
		SELECT ` + appointments.selectList("a", "") + `,
			` + patients.selectList("p", "patient") + `,
			` + doctors.selectList("d", "doctor") + `
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id AND ` + visible("p") + `
		JOIN doctors d ON d.id = a.doctor_id AND ` + visible("d") + `
		WHERE a.appointment_number = ? AND ` + visible("a"))

	q, err := r.u.session()
	if err != nil {
		return nil, err
	}
	var row appointmentRow
	err = r.u.store.observe("get", func() error {
		return sqlx.GetContext(ctx, q, &row, query, number)
	})
	if err != nil {
		return nil, notFound(r.t.entity, err)
	}
	return &model.AppointmentDetails{
		Appointment: &row.Appointment,
		Patient:     &row.Patient,
		Doctor:      &row.Doctor,
	}, nil
}

// GetByPatient returns the patient's appointments, latest first.
func (r *appointmentRepository) GetByPatient(ctx context.Context, patientID int64) ([]*model.Appointment, error) {
	return r.list(ctx, repository.Eq("patient_id", patientID), "appointment_date DESC, appointment_time DESC, id DESC")
}

func (r *appointmentRepository) GetByDoctor(ctx context.Context, doctorID int64) ([]*model.Appointment, error) {
	return r.list(ctx, repository.Eq("doctor_id", doctorID), r.t.orderBy)
}

// GetByDate returns the appointments on the calendar day of day, in day's
// location, ordered by time.
func (r *appointmentRepository) GetByDate(ctx context.Context, day time.Time) ([]*model.Appointment, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	return r.list(ctx, repository.And(
		repository.Gte("appointment_date", start),
		repository.Where("appointment_date < ?", end),
	), "appointment_time, id")
}

// GetByDateRange includes appointments on both bounds.
func (r *appointmentRepository) GetByDateRange(ctx context.Context, start, end time.Time) ([]*model.Appointment, error) {
	return r.list(ctx, repository.Between("appointment_date", start, end), r.t.orderBy)
}

// GetUpcoming returns appointments from now through the given number of days.
func (r *appointmentRepository) GetUpcoming(ctx context.Context, days int) ([]*model.Appointment, error) {
	if days < 0 {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("days must not be negative, got %d", days), nil)
	}
	now := r.u.store.now()
	return r.list(ctx, repository.Between("appointment_date", now, now.AddDate(0, 0, days)), r.t.orderBy)
}
