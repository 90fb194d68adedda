package sqlstore

import (
	"context"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
)

type medicalTestRepository struct {
	repo[model.MedicalTest, *model.MedicalTest]
}

var _ repository.MedicalTestRepository = (*medicalTestRepository)(nil)

func (r *medicalTestRepository) GetByRecord(ctx context.Context, recordID int64) ([]*model.MedicalTest, error) {
	return r.list(ctx, repository.Eq("medical_record_id", recordID), r.t.orderBy)
}
