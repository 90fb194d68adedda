package model

import (
	"time"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "Scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "Confirmed"
	AppointmentStatusCompleted AppointmentStatus = "Completed"
	AppointmentStatusCancelled AppointmentStatus = "Cancelled"
	AppointmentStatusNoShow    AppointmentStatus = "NoShow"
)

type Appointment struct {
	Base
	AppointmentNumber string            `db:"appointment_number" json:"appointment_number"`
	PatientID         int64             `db:"patient_id" json:"patient_id"`
	DoctorID          int64             `db:"doctor_id" json:"doctor_id"`
	AppointmentDate   time.Time         `db:"appointment_date" json:"appointment_date"`
	AppointmentTime   TimeOfDay         `db:"appointment_time" json:"appointment_time"`
	Reason            string            `db:"reason" json:"reason,omitempty"`
	Status            AppointmentStatus `db:"status" json:"status"`
	Notes             string            `db:"notes" json:"notes,omitempty"`
	ConsultationFee   *float64          `db:"consultation_fee" json:"consultation_fee,omitempty"`
}

type AppointmentDetails struct {
	Appointment *Appointment `json:"appointment"`
	Patient     *Patient     `json:"patient"`
	Doctor      *Doctor      `json:"doctor"`
}
