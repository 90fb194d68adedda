package model

import (
	"time"
)

type TestStatus string

const (
	TestStatusPending   TestStatus = "Pending"
	TestStatusCompleted TestStatus = "Completed"
	TestStatusAbnormal  TestStatus = "Abnormal"
)

// MedicalTest is a lab test ordered during a visit.
type MedicalTest struct {
	Base
	TestName        string     `db:"test_name" json:"test_name"`
	MedicalRecordID int64      `db:"medical_record_id" json:"medical_record_id"`
	TestDate        time.Time  `db:"test_date" json:"test_date"`
	TestResults     string     `db:"test_results" json:"test_results,omitempty"`
	NormalRange     string     `db:"normal_range" json:"normal_range,omitempty"`
	Status          TestStatus `db:"status" json:"status"`
	Notes           string     `db:"notes" json:"notes,omitempty"`
	TestCost        *float64   `db:"test_cost" json:"test_cost,omitempty"`
}
