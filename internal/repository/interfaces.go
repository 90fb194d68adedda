package repository

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-records/internal/model"
)

// ErrSequenceConsumed is yielded when a Find sequence is ranged over a second time.
var ErrSequenceConsumed = errors.New("sequence already consumed")

// All repository interfaces in one file
type (
	// Repository is the data access contract shared by every entity kind.
	// Reads never return soft-deleted rows. Add, Update and Delete only stage
	// changes; nothing is written until the owning UnitOfWork saves.
	Repository[T any] interface {
		GetByID(ctx context.Context, id int64) (*T, error)
		GetAll(ctx context.Context) ([]*T, error)
		Find(ctx context.Context, p Predicate) iter.Seq2[*T, error]
		// FirstOrDefault returns nil, nil when nothing matches.
		FirstOrDefault(ctx context.Context, p Predicate) (*T, error)
		Exists(ctx context.Context, p Predicate) (bool, error)
		Count(ctx context.Context, p ...Predicate) (int64, error)

		Add(entity *T) error
		AddRange(entities []*T) error
		Update(entity *T) error
		Delete(entity *T) error
		DeleteRange(entities []*T) error
		// DeleteByID loads the row and stages its deletion.
		DeleteByID(ctx context.Context, id int64) error
	}

	PatientRepository interface {
		Repository[model.Patient]
		GetByPatientCode(ctx context.Context, code string) (*model.Patient, error)
		GetByNationalID(ctx context.Context, nationalID string) (*model.Patient, error)
		Search(ctx context.Context, term string) ([]*model.Patient, error)
		GetByDoctor(ctx context.Context, doctorID int64) ([]*model.Patient, error)
	}

	DoctorRepository interface {
		Repository[model.Doctor]
		GetByDoctorCode(ctx context.Context, code string) (*model.Doctor, error)
		GetByLicenseNumber(ctx context.Context, license string) (*model.Doctor, error)
		GetBySpecialization(ctx context.Context, specialization string) ([]*model.Doctor, error)
		GetActive(ctx context.Context) ([]*model.Doctor, error)
	}

	MedicalRecordRepository interface {
		Repository[model.MedicalRecord]
		GetByRecordNumber(ctx context.Context, number string) (*model.MedicalRecord, error)
		GetByPatient(ctx context.Context, patientID int64) ([]*model.MedicalRecord, error)
		GetByDoctor(ctx context.Context, doctorID int64) ([]*model.MedicalRecord, error)
		GetByDateRange(ctx context.Context, start, end time.Time) ([]*model.MedicalRecord, error)
		GetWithDetails(ctx context.Context, id int64) (*model.MedicalRecordDetails, error)
	}

	AppointmentRepository interface {
		Repository[model.Appointment]
		GetByAppointmentNumber(ctx context.Context, number string) (*model.AppointmentDetails, error)
		GetByPatient(ctx context.Context, patientID int64) ([]*model.Appointment, error)
		GetByDoctor(ctx context.Context, doctorID int64) ([]*model.Appointment, error)
		GetByDate(ctx context.Context, day time.Time) ([]*model.Appointment, error)
		GetByDateRange(ctx context.Context, start, end time.Time) ([]*model.Appointment, error)
		GetUpcoming(ctx context.Context, days int) ([]*model.Appointment, error)
	}

	MedicalTestRepository interface {
		Repository[model.MedicalTest]
		GetByRecord(ctx context.Context, recordID int64) ([]*model.MedicalTest, error)
	}

	PrescriptionRepository interface {
		Repository[model.Prescription]
		GetByRecord(ctx context.Context, recordID int64) ([]*model.Prescription, error)
	}

	UserRepository interface {
		Repository[model.User]
		GetByUsername(ctx context.Context, username string) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
	}

	// UnitOfWork owns one database session and the transaction boundary for
	// every repository it exposes. It must not be shared between goroutines.
	UnitOfWork interface {
		Patients() PatientRepository
		Doctors() DoctorRepository
		MedicalRecords() MedicalRecordRepository
		Appointments() AppointmentRepository
		MedicalTests() MedicalTestRepository
		Prescriptions() PrescriptionRepository
		Users() UserRepository

		SaveChanges(ctx context.Context) (int64, error)
		BeginTransaction(ctx context.Context) error
		Commit(ctx context.Context) error
		Rollback(ctx context.Context) error
		Close() error
	}

	// OutboxRepository is used by the relay worker, outside any unit of work.
	OutboxRepository interface {
		Pending(ctx context.Context, limit, maxRetries int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
