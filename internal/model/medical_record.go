package model

import (
	"time"
)

const RecordStatusActive = "Active"

type MedicalRecord struct {
	Base
	RecordNumber        string    `db:"record_number" json:"record_number"`
	PatientID           int64     `db:"patient_id" json:"patient_id"`
	DoctorID            int64     `db:"doctor_id" json:"doctor_id"`
	VisitDate           time.Time `db:"visit_date" json:"visit_date"`
	ChiefComplaint      string    `db:"chief_complaint" json:"chief_complaint,omitempty"`
	PresentIllness      string    `db:"present_illness" json:"present_illness,omitempty"`
	PhysicalExamination string    `db:"physical_examination" json:"physical_examination,omitempty"`
	Diagnosis           string    `db:"diagnosis" json:"diagnosis,omitempty"`
	Treatment           string    `db:"treatment" json:"treatment,omitempty"`
	Prescription        string    `db:"prescription" json:"prescription,omitempty"`
	Notes               string    `db:"notes" json:"notes,omitempty"`
	ConsultationFee     *float64  `db:"consultation_fee" json:"consultation_fee,omitempty"`
	Status              string    `db:"status" json:"status"`
}

// MedicalRecordDetails is a record assembled with its patient, doctor and
// non-deleted children. Children reference the record by id only.
type MedicalRecordDetails struct {
	Record        *MedicalRecord  `json:"record"`
	Patient       *Patient        `json:"patient"`
	Doctor        *Doctor         `json:"doctor"`
	Tests         []*MedicalTest  `json:"tests"`
	Prescriptions []*Prescription `json:"prescriptions"`
}
