package model

import (
	"time"
)

type Patient struct {
	Base
	PatientCode    string    `db:"patient_code" json:"patient_code"`
	FirstName      string    `db:"first_name" json:"first_name"`
	LastName       string    `db:"last_name" json:"last_name"`
	DateOfBirth    time.Time `db:"date_of_birth" json:"date_of_birth"`
	Gender         string    `db:"gender" json:"gender"`
	Address        string    `db:"address" json:"address,omitempty"`
	PhoneNumber    string    `db:"phone_number" json:"phone_number,omitempty"`
	Email          string    `db:"email" json:"email,omitempty"`
	NationalID     *string   `db:"national_id" json:"national_id,omitempty"`
	MedicalHistory string    `db:"medical_history" json:"medical_history,omitempty"`
	Allergies      string    `db:"allergies" json:"allergies,omitempty"`
}

func (p *Patient) FullName() string {
	return fullName(p.FirstName, p.LastName)
}

// Age is the difference between the current year and the birth year.
func (p *Patient) Age(now time.Time) int {
	return now.Year() - p.DateOfBirth.Year()
}
