package sqlstore

import (
	"context"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
)

type doctorRepository struct {
	repo[model.Doctor, *model.Doctor]
}

var _ repository.DoctorRepository = (*doctorRepository)(nil)

func (r *doctorRepository) GetByDoctorCode(ctx context.Context, code string) (*model.Doctor, error) {
	return r.one(ctx, repository.Eq("doctor_code", code))
}

func (r *doctorRepository) GetByLicenseNumber(ctx context.Context, license string) (*model.Doctor, error) {
	return r.one(ctx, repository.Eq("license_number", license))
}

// GetBySpecialization is a case-insensitive substring match.
func (r *doctorRepository) GetBySpecialization(ctx context.Context, specialization string) ([]*model.Doctor, error) {
	return r.list(ctx, repository.Contains("specialization", specialization), r.t.orderBy)
}

func (r *doctorRepository) GetActive(ctx context.Context) ([]*model.Doctor, error) {
	return r.list(ctx, repository.Eq("is_active", true), r.t.orderBy)
}
