package sqlstore

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
)

type medicalRecordRepository struct {
	repo[model.MedicalRecord, *model.MedicalRecord]
}

var _ repository.MedicalRecordRepository = (*medicalRecordRepository)(nil)

func (r *medicalRecordRepository) GetByRecordNumber(ctx context.Context, number string) (*model.MedicalRecord, error) {
	return r.one(ctx, repository.Eq("record_number", number))
}

// GetByPatient returns the patient's records, newest visit first.
func (r *medicalRecordRepository) GetByPatient(ctx context.Context, patientID int64) ([]*model.MedicalRecord, error) {
	return r.list(ctx, repository.Eq("patient_id", patientID), r.t.orderBy)
}

func (r *medicalRecordRepository) GetByDoctor(ctx context.Context, doctorID int64) ([]*model.MedicalRecord, error) {
	return r.list(ctx, repository.Eq("doctor_id", doctorID), r.t.orderBy)
}

// GetByDateRange includes visits on both bounds.
func (r *medicalRecordRepository) GetByDateRange(ctx context.Context, start, end time.Time) ([]*model.MedicalRecord, error) {
	return r.list(ctx, repository.Between("visit_date", start, end), r.t.orderBy)
}

type medicalRecordRow struct {
	model.MedicalRecord
	Patient model.Patient `db:"patient"`
	Doctor  model.Doctor  `db:"doctor"`
}

// GetWithDetails loads the record joined with its patient and doctor, then
// its non-deleted tests and prescriptions, all on the unit's session.
func (r *medicalRecordRepository) GetWithDetails(ctx context.Context, id int64) (*model.MedicalRecordDetails, error) {
	query := r.u.store.rebind(`
		SELECT ` + medicalRecords.selectList("r", "") + `,
			` + patients.selectList("p", "patient") + `,
			` + doctors.selectList("d", "doctor") + `
		FROM medical_records r
		JOIN patients p ON p.id = r.patient_id AND ` + visible("p") + `
		JOIN doctors d ON d.id = r.doctor_id AND ` + visible("d") + `
		WHERE r.id = ? AND ` + visible("r"))

	q, err := r.u.session()
	if err != nil {
		return nil, err
	}
	var row medicalRecordRow
	err = r.u.store.observe("get", func() error {
		return sqlx.GetContext(ctx, q, &row, query, id)
	})
	if err != nil {
		return nil, notFound(r.t.entity, err)
	}

	tests, err := r.u.medicalTests.GetByRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	rx, err := r.u.prescriptions.GetByRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	return &model.MedicalRecordDetails{
		Record:        &row.MedicalRecord,
		Patient:       &row.Patient,
		Doctor:        &row.Doctor,
		Tests:         tests,
		Prescriptions: rx,
	}, nil
}
