package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
)

const flushSavepoint = "uow_flush"

// querier is the part of a connection or transaction the repositories use.
type querier interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

type State int

const (
	StateIdle State = iota
	StateTransactionOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTransactionOpen:
		return "transaction_open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type changeKind int

const (
	changeInsert changeKind = iota
	changeUpdate
	changeDelete
)

// event is the outbox suffix for the change.
func (k changeKind) event() string {
	switch k {
	case changeInsert:
		return "created"
	case changeUpdate:
		return "updated"
	}
	return "deleted"
}

type flushFunc func(ctx context.Context, tx *sqlx.Tx) (int64, error)

// change is one staged write. target is the entity pointer and identifies
// the change for de-duplication.
type change struct {
	kind   changeKind
	target any
	base   *model.Base
	saved  model.Base
	code   *string
	// flushCode is the code value when the change was last flushed.
	flushCode string
	table     string
	entity    string
	flush     flushFunc
}

// restore puts back the audit fields and code the change overwrote.
func (c *change) restore() {
	*c.base = c.saved
	if c.code != nil {
		*c.code = c.flushCode
	}
}

// UnitOfWork implements repository.UnitOfWork. Reads run on its pinned
// connection, or inside the open transaction when there is one. Writes are
// staged and reach the database only in SaveChanges.
type UnitOfWork struct {
	store *Store
	conn  *sqlx.Conn

	mu      sync.Mutex
	tx      *sqlx.Tx
	closed  bool
	pending []*change
	// flushed holds changes saved inside the open transaction until it ends.
	flushed []*change

	patients       *patientRepository
	doctors        *doctorRepository
	medicalRecords *medicalRecordRepository
	appointments   *appointmentRepository
	medicalTests   *medicalTestRepository
	prescriptions  *prescriptionRepository
	users          *userRepository
}

var _ repository.UnitOfWork = (*UnitOfWork)(nil)

func newUnitOfWork(s *Store, conn *sqlx.Conn) *UnitOfWork {
	u := &UnitOfWork{store: s, conn: conn}
	u.patients = &patientRepository{repo[model.Patient, *model.Patient]{u: u, t: patients}}
	u.doctors = &doctorRepository{repo[model.Doctor, *model.Doctor]{u: u, t: doctors}}
	u.medicalRecords = &medicalRecordRepository{repo[model.MedicalRecord, *model.MedicalRecord]{u: u, t: medicalRecords}}
	u.appointments = &appointmentRepository{repo[model.Appointment, *model.Appointment]{u: u, t: appointments}}
	u.medicalTests = &medicalTestRepository{repo[model.MedicalTest, *model.MedicalTest]{u: u, t: medicalTests}}
	u.prescriptions = &prescriptionRepository{repo[model.Prescription, *model.Prescription]{u: u, t: prescriptions}}
	u.users = &userRepository{repo[model.User, *model.User]{u: u, t: users}}
	return u
}

func (u *UnitOfWork) Patients() repository.PatientRepository             { return u.patients }
func (u *UnitOfWork) Doctors() repository.DoctorRepository               { return u.doctors }
func (u *UnitOfWork) MedicalRecords() repository.MedicalRecordRepository { return u.medicalRecords }
func (u *UnitOfWork) Appointments() repository.AppointmentRepository     { return u.appointments }
func (u *UnitOfWork) MedicalTests() repository.MedicalTestRepository     { return u.medicalTests }
func (u *UnitOfWork) Prescriptions() repository.PrescriptionRepository   { return u.prescriptions }
func (u *UnitOfWork) Users() repository.UserRepository                   { return u.users }

func (u *UnitOfWork) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch {
	case u.closed:
		return StateClosed
	case u.tx != nil:
		return StateTransactionOpen
	}
	return StateIdle
}

// Pending returns the number of staged changes.
func (u *UnitOfWork) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.pending)
}

func errClosed() error {
	return apperrors.NewTransactionMisuse("unit of work is closed")
}

// session returns what reads should run on.
func (u *UnitOfWork) session() (querier, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil, errClosed()
	}
	if u.tx != nil {
		return u.tx, nil
	}
	return u.conn, nil
}

// stage records c, folding it into an earlier change to the same entity.
// Add then Update stays an insert, Add then Delete cancels the insert and
// Update then Delete becomes a delete.
func (u *UnitOfWork) stage(c *change) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return errClosed()
	}
	c.saved = *c.base

	for i, prev := range u.pending {
		if prev.target != c.target {
			continue
		}
		switch {
		case prev.kind == c.kind:
		case prev.kind == changeInsert && c.kind == changeUpdate:
		case prev.kind == changeInsert && c.kind == changeDelete:
			u.pending = append(u.pending[:i], u.pending[i+1:]...)
			c.base.IsDeleted = true
		case prev.kind == changeUpdate && c.kind == changeDelete:
			c.saved = prev.saved
			u.pending[i] = c
			c.base.IsDeleted = true
		case prev.kind == changeDelete:
			return apperrors.NewBadRequest(fmt.Sprintf("%s is already staged for deletion", c.entity), nil)
		default:
			return apperrors.NewBadRequest(fmt.Sprintf("%s %d is already persisted", c.entity, c.base.ID), nil)
		}
		return nil
	}

	switch c.kind {
	case changeInsert:
		if c.base.ID != 0 {
			return apperrors.NewBadRequest(fmt.Sprintf("%s %d is already persisted", c.entity, c.base.ID), nil)
		}
	default:
		if c.base.ID == 0 {
			return apperrors.NewBadRequest(fmt.Sprintf("%s has not been saved", c.entity), nil)
		}
		if c.kind == changeDelete {
			c.base.IsDeleted = true
		}
	}
	u.pending = append(u.pending, c)
	return nil
}

// SaveChanges writes every staged change atomically and returns the number
// of rows affected. Without an open transaction it runs in its own; inside
// one it runs under a savepoint so a failure leaves the transaction usable.
// On failure nothing is written, entity audit fields are restored to their
// state before staging and the changes stay staged.
func (u *UnitOfWork) SaveChanges(ctx context.Context) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return 0, errClosed()
	}
	if len(u.pending) == 0 {
		return 0, nil
	}

	start := time.Now()
	n, err := u.save(ctx)
	if m := u.store.metrics; m != nil {
		status := "success"
		if err != nil {
			status = apperrors.CodeOf(err).String()
		}
		m.SaveChanges.WithLabelValues(status).Inc()
		m.SaveChangesLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		u.store.log.Debug("save changes failed", "error", err.Error(), "pending", len(u.pending))
		return 0, err
	}
	return n, nil
}

func (u *UnitOfWork) save(ctx context.Context) (int64, error) {
	tx := u.tx
	implicit := tx == nil
	if implicit {
		var err error
		if tx, err = u.conn.BeginTxx(ctx, nil); err != nil {
			return 0, fmt.Errorf("failed to begin transaction: %w", err)
		}
	} else if err := savepoint(ctx, tx, flushSavepoint); err != nil {
		return 0, err
	}

	for _, c := range u.pending {
		if c.code != nil {
			c.flushCode = *c.code
		}
	}
	restore := func() {
		for _, c := range u.pending {
			c.restore()
		}
	}

	n, err := u.flush(ctx, tx)
	if err != nil {
		restore()
		if implicit {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				u.store.log.Error(rbErr, "failed to roll back save")
			}
			u.countTransaction("rolled_back")
		} else if rbErr := rollbackTo(ctx, tx, flushSavepoint); rbErr != nil {
			u.store.log.Error(rbErr, "failed to roll back to savepoint", "savepoint", flushSavepoint)
		}
		return 0, err
	}

	if implicit {
		if err := tx.Commit(); err != nil {
			restore()
			u.countTransaction("rolled_back")
			return 0, fmt.Errorf("failed to commit changes: %w", constraintError(err))
		}
		u.countTransaction("committed")
	} else {
		if err := release(ctx, tx, flushSavepoint); err != nil {
			restore()
			return 0, err
		}
		u.flushed = append(u.flushed, u.pending...)
	}

	u.pending = nil
	return n, nil
}

// flush stamps audit fields and applies each change in staging order.
func (u *UnitOfWork) flush(ctx context.Context, tx *sqlx.Tx) (int64, error) {
	now := u.store.now()
	var total int64
	for _, c := range u.pending {
		stamp(c, now)
		n, err := c.flush(ctx, tx)
		if err != nil {
			if apperrors.IsConstraintViolation(err) && u.store.metrics != nil {
				u.store.metrics.ConstraintViolations.WithLabelValues(c.table).Inc()
			}
			return 0, err
		}
		total += n

		if u.store.outbox {
			if err := u.store.writeEvent(ctx, tx, c.entity, c.kind.event(), c.base.ID, c.target, now); err != nil {
				return 0, err
			}
		}
	}
	return total, nil
}

func stamp(c *change, now time.Time) {
	b := c.base
	switch c.kind {
	case changeInsert:
		b.CreatedAt = now
		b.UpdatedAt = nil
		b.IsDeleted = false
	case changeUpdate:
		b.UpdatedAt = &now
	case changeDelete:
		b.UpdatedAt = &now
		b.IsDeleted = true
	}
}

// BeginTransaction opens an explicit transaction. Nested transactions are
// not supported.
func (u *UnitOfWork) BeginTransaction(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return errClosed()
	}
	if u.tx != nil {
		return apperrors.NewTransactionMisuse("a transaction is already open")
	}

	tx, err := u.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	u.tx = tx
	return nil
}

// Commit makes everything saved since BeginTransaction durable. Changes that
// were staged but not saved stay staged.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return errClosed()
	}
	if u.tx == nil {
		return u.noTransaction("commit")
	}
	if len(u.pending) > 0 {
		u.store.log.Warn("committing with unsaved changes", "pending", len(u.pending))
	}

	tx := u.tx
	u.tx = nil
	if err := tx.Commit(); err != nil {
		u.revert()
		u.countTransaction("rolled_back")
		return fmt.Errorf("failed to commit transaction: %w", constraintError(err))
	}
	u.flushed = nil
	u.countTransaction("committed")
	return nil
}

// Rollback discards the open transaction and every staged change. Entities
// saved inside the transaction get back their ID, audit fields and code, and
// entities staged for deletion are no longer marked deleted.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return errClosed()
	}
	u.discard()
	if u.tx == nil {
		return u.noTransaction("rollback")
	}
	u.revert()
	return u.rollback()
}

// discard drops staged changes and puts back the fields staging touched.
func (u *UnitOfWork) discard() {
	for _, c := range u.pending {
		*c.base = c.saved
	}
	u.pending = nil
}

// revert undoes the in-memory effects of changes saved inside a transaction
// that will not commit, newest first.
func (u *UnitOfWork) revert() {
	for i := len(u.flushed) - 1; i >= 0; i-- {
		u.flushed[i].restore()
	}
	u.flushed = nil
}

func (u *UnitOfWork) rollback() error {
	tx := u.tx
	u.tx = nil
	u.countTransaction("rolled_back")
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

func (u *UnitOfWork) noTransaction(op string) error {
	if u.store.strict {
		return apperrors.NewTransactionMisuse(op + " without an open transaction")
	}
	u.store.log.Debug("no open transaction", "op", op)
	return nil
}

// Close rolls back any open transaction, drops staged changes and returns
// the connection to the pool. Closing twice is a no-op.
func (u *UnitOfWork) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	u.discard()

	var rbErr error
	if u.tx != nil {
		u.revert()
		rbErr = u.rollback()
	}
	if err := u.conn.Close(); err != nil {
		return fmt.Errorf("failed to release connection: %w", err)
	}
	return rbErr
}

func (u *UnitOfWork) countTransaction(outcome string) {
	if u.store.metrics != nil {
		u.store.metrics.Transactions.WithLabelValues(outcome).Inc()
	}
}

func savepoint(ctx context.Context, tx *sqlx.Tx, name string) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}
	return nil
}

func rollbackTo(ctx context.Context, tx *sqlx.Tx, name string) error {
	if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to roll back to savepoint %s: %w", name, err)
	}
	return nil
}

func release(ctx context.Context, tx *sqlx.Tx, name string) error {
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	return nil
}
