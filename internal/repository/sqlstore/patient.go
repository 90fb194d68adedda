package sqlstore

import (
	"context"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
)

type patientRepository struct {
	repo[model.Patient, *model.Patient]
}

var _ repository.PatientRepository = (*patientRepository)(nil)

func (r *patientRepository) GetByPatientCode(ctx context.Context, code string) (*model.Patient, error) {
	return r.one(ctx, repository.Eq("patient_code", code))
}

func (r *patientRepository) GetByNationalID(ctx context.Context, nationalID string) (*model.Patient, error) {
	return r.one(ctx, repository.Eq("national_id", nationalID))
}

// Search matches term against first name, last name, code and phone number,
// ignoring case. An empty term matches every patient.
func (r *patientRepository) Search(ctx context.Context, term string) ([]*model.Patient, error) {
	return r.list(ctx, repository.Or(
		repository.Contains("first_name", term),
		repository.Contains("last_name", term),
		repository.Contains("patient_code", term),
		repository.Contains("phone_number", term),
	), r.t.orderBy)
}

// GetByDoctor returns the patients with at least one non-deleted medical
// record written by the doctor.
func (r *patientRepository) GetByDoctor(ctx context.Context, doctorID int64) ([]*model.Patient, error) {
	return r.list(ctx, repository.Where(
		"EXISTS (SELECT 1 FROM medical_records r WHERE r.patient_id = patients.id AND r.doctor_id = ? AND "+
			visible("r")+")",
		doctorID,
	), r.t.orderBy)
}
