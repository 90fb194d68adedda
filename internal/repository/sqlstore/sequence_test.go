package sqlstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sourcegraph/conc/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-records/internal/codegen"
	"github.com/jwalitptl/clinic-records/internal/model"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
	"github.com/jwalitptl/clinic-records/pkg/metrics"
)

func TestCodesAreAllocatedOnInsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p, d := seed(t, s)
	assert.Equal(t, "P000001", p.PatientCode)
	assert.Equal(t, "D000001", d.DoctorCode)

	u := newUnit(t, s)
	record := newRecord(p, d, t0)
	appt := newAppointment(p, d, t0, model.NewTimeOfDay(9, 30))
	second := newPatient("Rita", "Lopes")
	require.NoError(t, u.MedicalRecords().Add(record))
	require.NoError(t, u.Appointments().Add(appt))
	require.NoError(t, u.Patients().Add(second))
	_, err := u.SaveChanges(ctx)
	require.NoError(t, err)

	assert.Equal(t, "MR000001", record.RecordNumber)
	assert.Equal(t, model.RecordStatusActive, record.Status)
	assert.Equal(t, "APT000001", appt.AppointmentNumber)
	assert.Equal(t, model.AppointmentStatusScheduled, appt.Status)
	assert.Equal(t, "P000002", second.PatientCode)

	got, err := u.Patients().GetByPatientCode(ctx, "P000002")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestCallerSuppliedCodeIsKept(t *testing.T) {
	ctx := context.Background()
	u := newUnit(t, newTestStore(t))

	p := newPatient("Ana", "Silva")
	p.PatientCode = "P000777"
	require.NoError(t, u.Patients().Add(p))
	_, err := u.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, "P000777", p.PatientCode)
}

func TestCodeCollisionIsRetried(t *testing.T) {
	ctx := context.Background()
	m := metrics.New("test")
	s := newTestStore(t, WithMetrics(m))
	u := newUnit(t, s)

	taken := newPatient("Ana", "Silva")
	taken.PatientCode = codegen.Patient.Format(2)
	require.NoError(t, u.Patients().Add(taken))
	_, err := u.SaveChanges(ctx)
	require.NoError(t, err)

	// the counter seeds from the row count and lands on the taken code first
	p := newPatient("Rita", "Lopes")
	require.NoError(t, u.Patients().Add(p))
	_, err = u.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, "P000003", p.PatientCode)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CodeAllocationRetries.WithLabelValues("patient")))
}

func TestConcurrentUnitsGetDistinctCodes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	const writers = 8

	p := pool.NewWithResults[string]().WithErrors()
	for i := 0; i < writers; i++ {
		p.Go(func() (string, error) {
			u, err := s.UnitOfWork(ctx)
			if err != nil {
				return "", err
			}
			defer u.Close()

			patient := newPatient(fmt.Sprintf("Writer%d", i), "Silva")
			if err := u.Patients().Add(patient); err != nil {
				return "", err
			}
			if _, err := u.SaveChanges(ctx); err != nil {
				return "", err
			}
			return patient.PatientCode, nil
		})
	}
	codes, err := p.Wait()
	require.NoError(t, err)
	require.Len(t, codes, writers)

	seen := map[string]bool{}
	for _, c := range codes {
		assert.True(t, codegen.Valid(c))
		assert.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}
}

func TestCountStrategyCollisionRejectsLaterCommit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithCodeStrategy(codegen.StrategyCount))
	first := newUnit(t, s)
	second := newUnit(t, s)

	a := newPatient("Ana", "Silva")
	b := newPatient("Rita", "Lopes")
	var err error
	a.PatientCode, err = codegen.NextByCount(ctx, first.Patients(), codegen.Patient)
	require.NoError(t, err)
	b.PatientCode, err = codegen.NextByCount(ctx, second.Patients(), codegen.Patient)
	require.NoError(t, err)
	assert.Equal(t, a.PatientCode, b.PatientCode)

	require.NoError(t, first.Patients().Add(a))
	_, err = first.SaveChanges(ctx)
	require.NoError(t, err)

	require.NoError(t, second.Patients().Add(b))
	_, err = second.SaveChanges(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsConstraintViolation(err))
	assert.Contains(t, apperrors.ConstraintOf(err), "patient_code")

	// the count strategy also fills empty codes at save time
	c := newPatient("Carla", "Dias")
	require.NoError(t, first.Patients().Add(c))
	_, err = first.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, "P000002", c.PatientCode)
}
