package sqlstore

import (
	"context"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
)

type prescriptionRepository struct {
	repo[model.Prescription, *model.Prescription]
}

var _ repository.PrescriptionRepository = (*prescriptionRepository)(nil)

func (r *prescriptionRepository) GetByRecord(ctx context.Context, recordID int64) ([]*model.Prescription, error) {
	return r.list(ctx, repository.Eq("medical_record_id", recordID), r.t.orderBy)
}
