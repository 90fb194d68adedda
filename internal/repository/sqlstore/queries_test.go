package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-records/internal/model"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
)

func day(d int, h int) time.Time {
	return time.Date(2026, 3, d, h, 0, 0, 0, time.UTC)
}

func TestMedicalRecordQueries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p, d := seed(t, s)
	u := newUnit(t, s)

	other := newDoctor("Eva", "Reis", "Neurology")
	require.NoError(t, u.Doctors().Add(other))
	_, err := u.SaveChanges(ctx)
	require.NoError(t, err)

	r1 := newRecord(p, d, day(1, 0))
	r2 := newRecord(p, d, day(2, 0))
	r3 := newRecord(p, other, day(3, 0))
	require.NoError(t, u.MedicalRecords().AddRange([]*model.MedicalRecord{r1, r2, r3}))
	_, err = u.SaveChanges(ctx)
	require.NoError(t, err)

	inRange, err := u.MedicalRecords().GetByDateRange(ctx, day(1, 0), day(2, 0))
	require.NoError(t, err)
	require.Len(t, inRange, 2, "both bounds are inclusive")
	assert.Equal(t, r2.ID, inRange[0].ID, "newest visit first")
	assert.Equal(t, r1.ID, inRange[1].ID)

	byPatient, err := u.MedicalRecords().GetByPatient(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, byPatient, 3)
	assert.Equal(t, r3.ID, byPatient[0].ID)

	byDoctor, err := u.MedicalRecords().GetByDoctor(ctx, other.ID)
	require.NoError(t, err)
	require.Len(t, byDoctor, 1)

	got, err := u.MedicalRecords().GetByRecordNumber(ctx, r2.RecordNumber)
	require.NoError(t, err)
	assert.Equal(t, r2.ID, got.ID)

	patients, err := u.Patients().GetByDoctor(ctx, other.ID)
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, p.ID, patients[0].ID)

	require.NoError(t, u.MedicalRecords().Delete(r3))
	_, err = u.SaveChanges(ctx)
	require.NoError(t, err)
	patients, err = u.Patients().GetByDoctor(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, patients, "deleted records no longer link the patient")
}

func TestGetWithDetails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p, d := seed(t, s)
	u := newUnit(t, s)

	record := newRecord(p, d, t0)
	record.ConsultationFee = ptr(150.5)
	require.NoError(t, u.MedicalRecords().Add(record))
	_, err := u.SaveChanges(ctx)
	require.NoError(t, err)

	kept := &model.MedicalTest{TestName: "CBC", MedicalRecordID: record.ID, TestDate: t0}
	dropped := &model.MedicalTest{TestName: "X-Ray", MedicalRecordID: record.ID, TestDate: t0}
	rx := &model.Prescription{MedicationName: "Ibuprofen", MedicalRecordID: record.ID, Quantity: ptr(10)}
	require.NoError(t, u.MedicalTests().AddRange([]*model.MedicalTest{kept, dropped}))
	require.NoError(t, u.Prescriptions().Add(rx))
	_, err = u.SaveChanges(ctx)
	require.NoError(t, err)

	require.NoError(t, u.MedicalTests().Delete(dropped))
	_, err = u.SaveChanges(ctx)
	require.NoError(t, err)

	details, err := u.MedicalRecords().GetWithDetails(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.RecordNumber, details.Record.RecordNumber)
	require.NotNil(t, details.Record.ConsultationFee)
	assert.InDelta(t, 150.5, *details.Record.ConsultationFee, 0.001)
	assert.Equal(t, p.ID, details.Patient.ID)
	assert.Equal(t, "Silva", details.Patient.LastName)
	assert.Equal(t, d.DoctorCode, details.Doctor.DoctorCode)
	require.Len(t, details.Tests, 1)
	assert.Equal(t, "CBC", details.Tests[0].TestName)
	assert.Equal(t, model.TestStatusPending, details.Tests[0].Status)
	require.Len(t, details.Prescriptions, 1)
	assert.Equal(t, model.PrescriptionStatusActive, details.Prescriptions[0].Status)

	_, err = u.MedicalRecords().GetWithDetails(ctx, 9999)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAppointmentQueries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithClock(newTestClock(t0).Now))
	p, d := seed(t, s)
	u := newUnit(t, s)

	past := newAppointment(p, d, day(9, 0), model.NewTimeOfDay(11, 0))
	laterToday := newAppointment(p, d, day(10, 12), model.NewTimeOfDay(12, 0))
	todayEarly := newAppointment(p, d, day(10, 12), model.NewTimeOfDay(8, 30))
	nextWeek := newAppointment(p, d, day(15, 0), model.NewTimeOfDay(9, 0))
	farOut := newAppointment(p, d, day(20, 0), model.NewTimeOfDay(9, 0))
	require.NoError(t, u.Appointments().AddRange([]*model.Appointment{past, laterToday, todayEarly, nextWeek, farOut}))
	_, err := u.SaveChanges(ctx)
	require.NoError(t, err)

	upcoming, err := u.Appointments().GetUpcoming(ctx, 7)
	require.NoError(t, err)
	require.Len(t, upcoming, 3)
	assert.Equal(t, todayEarly.ID, upcoming[0].ID, "same date orders by time")
	assert.Equal(t, laterToday.ID, upcoming[1].ID)
	assert.Equal(t, nextWeek.ID, upcoming[2].ID)

	_, err = u.Appointments().GetUpcoming(ctx, -1)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))

	onDay, err := u.Appointments().GetByDate(ctx, day(10, 18))
	require.NoError(t, err)
	require.Len(t, onDay, 2)
	assert.Equal(t, model.NewTimeOfDay(8, 30), onDay[0].AppointmentTime)

	ranged, err := u.Appointments().GetByDateRange(ctx, day(9, 0), day(15, 0))
	require.NoError(t, err)
	assert.Len(t, ranged, 4)

	byPatient, err := u.Appointments().GetByPatient(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, byPatient, 5)
	assert.Equal(t, farOut.ID, byPatient[0].ID, "latest first")

	byDoctor, err := u.Appointments().GetByDoctor(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, past.ID, byDoctor[0].ID, "earliest first")

	details, err := u.Appointments().GetByAppointmentNumber(ctx, nextWeek.AppointmentNumber)
	require.NoError(t, err)
	assert.Equal(t, nextWeek.ID, details.Appointment.ID)
	assert.Equal(t, model.NewTimeOfDay(9, 0), details.Appointment.AppointmentTime)
	assert.Equal(t, p.FirstName, details.Patient.FirstName)
	assert.Equal(t, d.LastName, details.Doctor.LastName)

	_, err = u.Appointments().GetByAppointmentNumber(ctx, "APT999999")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUpcomingWindowIsInclusive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithClock(newTestClock(t0).Now))
	p, d := seed(t, s)
	u := newUnit(t, s)

	hourAgo := newAppointment(p, d, t0.Add(-time.Hour), model.NewTimeOfDay(8, 0))
	now := newAppointment(p, d, t0, model.NewTimeOfDay(9, 0))
	weekOut := newAppointment(p, d, t0.AddDate(0, 0, 7), model.NewTimeOfDay(9, 0))
	eightDays := newAppointment(p, d, t0.AddDate(0, 0, 8), model.NewTimeOfDay(9, 0))
	require.NoError(t, u.Appointments().AddRange([]*model.Appointment{hourAgo, now, weekOut, eightDays}))
	_, err := u.SaveChanges(ctx)
	require.NoError(t, err)

	upcoming, err := u.Appointments().GetUpcoming(ctx, 7)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, now.ID, upcoming[0].ID)
	assert.Equal(t, weekOut.ID, upcoming[1].ID, "the last day of the window is included")

	today, err := u.Appointments().GetUpcoming(ctx, 0)
	require.NoError(t, err)
	require.Len(t, today, 1)
	assert.Equal(t, now.ID, today[0].ID)
}

func TestPatientAndDoctorLookups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newUnit(t, s)

	ana := newPatient("Ana", "Silva")
	ana.NationalID = ptr("111")
	bruno := newPatient("Bruno", "Alves")
	bruno.PhoneNumber = "555-9999"
	require.NoError(t, u.Patients().AddRange([]*model.Patient{ana, bruno}))

	cardio := newDoctor("Rui", "Costa", "Interventional Cardiology")
	cardio.LicenseNumber = ptr("LIC-1")
	retired := newDoctor("Eva", "Reis", "cardiology")
	retired.IsActive = false
	require.NoError(t, u.Doctors().AddRange([]*model.Doctor{cardio, retired}))
	_, err := u.SaveChanges(ctx)
	require.NoError(t, err)

	found, err := u.Patients().Search(ctx, "SIL")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ana.ID, found[0].ID)

	found, err = u.Patients().Search(ctx, "9999")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, bruno.ID, found[0].ID)

	found, err = u.Patients().Search(ctx, "")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, bruno.ID, found[0].ID, "ordered by last name")

	found, err = u.Patients().Search(ctx, "%")
	require.NoError(t, err)
	assert.Empty(t, found, "wildcards match literally")

	byNational, err := u.Patients().GetByNationalID(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, ana.ID, byNational.ID)
	_, err = u.Patients().GetByNationalID(ctx, "222")
	assert.True(t, apperrors.IsNotFound(err))

	cardiologists, err := u.Doctors().GetBySpecialization(ctx, "Cardio")
	require.NoError(t, err)
	assert.Len(t, cardiologists, 2)

	active, err := u.Doctors().GetActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, cardio.ID, active[0].ID)

	byLicense, err := u.Doctors().GetByLicenseNumber(ctx, "LIC-1")
	require.NoError(t, err)
	assert.Equal(t, cardio.ID, byLicense.ID)

	byCode, err := u.Doctors().GetByDoctorCode(ctx, retired.DoctorCode)
	require.NoError(t, err)
	assert.False(t, byCode.IsActive)
}
