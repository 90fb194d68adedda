package sqlstore

import (
	"strings"

	"github.com/jwalitptl/clinic-records/internal/codegen"
	"github.com/jwalitptl/clinic-records/internal/model"
)

// entity constrains the pointer type of a persisted model so that generic
// code can reach the embedded Base.
type entity[T any] interface {
	*T
	model.HasSoftDelete
}

// reference is a foreign key column on another table pointing at this one.
// entity names the referencing kind in outbox events.
type reference struct {
	table  string
	column string
	entity string
}

// parent is a foreign key held by the row itself. A nil id is an unset
// nullable reference.
type parent struct {
	column string
	table  string
	id     *int64
}

// deleteRules decide what happens to referencing rows when a row is deleted.
type deleteRules struct {
	// restrict blocks the delete while any non-deleted row references it.
	restrict []reference
	// cascade soft-deletes the referencing rows together with the parent.
	cascade []reference
	// setNull clears the referencing column.
	setNull []reference
}

// table describes how one entity kind maps onto its table.
type table[T any] struct {
	name    string
	entity  string
	columns []string
	orderBy string
	deletes deleteRules

	// code is set for kinds that carry a business code.
	code   *codegen.Kind
	codeOf func(*T) *string

	// parents lists the rows this one points at. Each must be visible when
	// the row is inserted or updated.
	parents func(*T) []parent

	// prepare fills insert defaults the caller left empty.
	prepare func(*T)
}

var baseColumns = []string{"id", "created_at", "updated_at", "is_deleted"}

// selectList renders every column, qualified by alias when set and renamed
// to prefix.column when prefix is set so the row can scan into a nested struct.
func (t *table[T]) selectList(alias, prefix string) string {
	all := append(append([]string{}, baseColumns...), t.columns...)
	parts := make([]string, len(all))
	for i, c := range all {
		col := c
		if alias != "" {
			col = alias + "." + c
		}
		if prefix != "" {
			col += ` AS "` + prefix + "." + c + `"`
		}
		parts[i] = col
	}
	return strings.Join(parts, ", ")
}

// visible is the soft-delete filter. Every read path goes through it.
func visible(alias string) string {
	if alias == "" {
		return "is_deleted = FALSE"
	}
	return alias + ".is_deleted = FALSE"
}

func (t *table[T]) insertSQL() string {
	cols := append(append([]string{}, t.columns...), "created_at", "updated_at", "is_deleted")
	return "INSERT INTO " + t.name + " (" + strings.Join(cols, ", ") + ") VALUES (:" +
		strings.Join(cols, ", :") + ") RETURNING id"
}

func (t *table[T]) updateSQL() string {
	sets := make([]string, 0, len(t.columns)+1)
	for _, c := range t.columns {
		sets = append(sets, c+" = :"+c)
	}
	sets = append(sets, "updated_at = :updated_at")
	return "UPDATE " + t.name + " SET " + strings.Join(sets, ", ") +
		" WHERE id = :id AND " + visible("")
}

var patients = &table[model.Patient]{
	name:   "patients",
	entity: "patient",
	columns: []string{
		"patient_code", "first_name", "last_name", "date_of_birth", "gender", "address",
		"phone_number", "email", "national_id", "medical_history", "allergies",
	},
	orderBy: "last_name, first_name, id",
	deletes: deleteRules{
		restrict: []reference{
			{"medical_records", "patient_id", "medical record"},
			{"appointments", "patient_id", "appointment"},
		},
	},
	code:   &codegen.Patient,
	codeOf: func(p *model.Patient) *string { return &p.PatientCode },
}

var doctors = &table[model.Doctor]{
	name:   "doctors",
	entity: "doctor",
	columns: []string{
		"doctor_code", "first_name", "last_name", "specialization", "license_number", "phone_number",
		"email", "address", "license_expiry_date", "qualifications", "is_active",
	},
	orderBy: "last_name, first_name, id",
	deletes: deleteRules{
		restrict: []reference{
			{"medical_records", "doctor_id", "medical record"},
			{"appointments", "doctor_id", "appointment"},
		},
		setNull: []reference{{"users", "doctor_id", "user"}},
	},
	code:   &codegen.Doctor,
	codeOf: func(d *model.Doctor) *string { return &d.DoctorCode },
}

var medicalRecords = &table[model.MedicalRecord]{
	name:   "medical_records",
	entity: "medical record",
	columns: []string{
		"record_number", "patient_id", "doctor_id", "visit_date", "chief_complaint", "present_illness",
		"physical_examination", "diagnosis", "treatment", "prescription", "notes", "consultation_fee", "status",
	},
	orderBy: "visit_date DESC, id DESC",
	deletes: deleteRules{
		cascade: []reference{
			{"medical_tests", "medical_record_id", "medical test"},
			{"prescriptions", "medical_record_id", "prescription"},
		},
	},
	code:   &codegen.MedicalRecord,
	codeOf: func(r *model.MedicalRecord) *string { return &r.RecordNumber },
	parents: func(r *model.MedicalRecord) []parent {
		return []parent{{"patient_id", "patients", &r.PatientID}, {"doctor_id", "doctors", &r.DoctorID}}
	},
	prepare: func(r *model.MedicalRecord) {
		if r.Status == "" {
			r.Status = model.RecordStatusActive
		}
	},
}

var appointments = &table[model.Appointment]{
	name:   "appointments",
	entity: "appointment",
	columns: []string{
		"appointment_number", "patient_id", "doctor_id", "appointment_date", "appointment_time",
		"reason", "status", "notes", "consultation_fee",
	},
	orderBy: "appointment_date, appointment_time, id",
	code:    &codegen.Appointment,
	codeOf:  func(a *model.Appointment) *string { return &a.AppointmentNumber },
	parents: func(a *model.Appointment) []parent {
		return []parent{{"patient_id", "patients", &a.PatientID}, {"doctor_id", "doctors", &a.DoctorID}}
	},
	prepare: func(a *model.Appointment) {
		if a.Status == "" {
			a.Status = model.AppointmentStatusScheduled
		}
	},
}

var medicalTests = &table[model.MedicalTest]{
	name:   "medical_tests",
	entity: "medical test",
	columns: []string{
		"test_name", "medical_record_id", "test_date", "test_results", "normal_range",
		"status", "notes", "test_cost",
	},
	orderBy: "test_date, id",
	parents: func(m *model.MedicalTest) []parent {
		return []parent{{"medical_record_id", "medical_records", &m.MedicalRecordID}}
	},
	prepare: func(m *model.MedicalTest) {
		if m.Status == "" {
			m.Status = model.TestStatusPending
		}
	},
}

var prescriptions = &table[model.Prescription]{
	name:   "prescriptions",
	entity: "prescription",
	columns: []string{
		"medication_name", "medical_record_id", "dosage", "frequency", "duration",
		"instructions", "quantity", "unit_price", "status",
	},
	orderBy: "id",
	parents: func(p *model.Prescription) []parent {
		return []parent{{"medical_record_id", "medical_records", &p.MedicalRecordID}}
	},
	prepare: func(p *model.Prescription) {
		if p.Status == "" {
			p.Status = model.PrescriptionStatusActive
		}
	},
}

var users = &table[model.User]{
	name:   "users",
	entity: "user",
	columns: []string{
		"username", "email", "password_hash", "first_name", "last_name", "role",
		"is_active", "last_login_date", "phone_number", "doctor_id",
	},
	orderBy: "username, id",
	parents: func(u *model.User) []parent {
		return []parent{{"doctor_id", "doctors", u.DoctorID}}
	},
	prepare: func(u *model.User) {
		if u.Role == "" {
			u.Role = model.UserRoleUser
		}
	},
}
