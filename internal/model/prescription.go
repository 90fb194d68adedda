package model

type PrescriptionStatus string

const (
	PrescriptionStatusActive    PrescriptionStatus = "Active"
	PrescriptionStatusCompleted PrescriptionStatus = "Completed"
	PrescriptionStatusCancelled PrescriptionStatus = "Cancelled"
)

type Prescription struct {
	Base
	MedicationName  string             `db:"medication_name" json:"medication_name"`
	MedicalRecordID int64              `db:"medical_record_id" json:"medical_record_id"`
	Dosage          string             `db:"dosage" json:"dosage"`
	Frequency       string             `db:"frequency" json:"frequency"`
	Duration        string             `db:"duration" json:"duration,omitempty"`
	Instructions    string             `db:"instructions" json:"instructions,omitempty"`
	Quantity        *int               `db:"quantity" json:"quantity,omitempty"`
	UnitPrice       *float64           `db:"unit_price" json:"unit_price,omitempty"`
	Status          PrescriptionStatus `db:"status" json:"status"`
}
