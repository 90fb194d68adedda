package model

import (
	"time"
)

type Doctor struct {
	Base
	DoctorCode        string     `db:"doctor_code" json:"doctor_code"`
	FirstName         string     `db:"first_name" json:"first_name"`
	LastName          string     `db:"last_name" json:"last_name"`
	Specialization    string     `db:"specialization" json:"specialization"`
	LicenseNumber     *string    `db:"license_number" json:"license_number,omitempty"`
	PhoneNumber       string     `db:"phone_number" json:"phone_number,omitempty"`
	Email             string     `db:"email" json:"email,omitempty"`
	Address           string     `db:"address" json:"address,omitempty"`
	LicenseExpiryDate *time.Time `db:"license_expiry_date" json:"license_expiry_date,omitempty"`
	Qualifications    string     `db:"qualifications" json:"qualifications,omitempty"`
	IsActive          bool       `db:"is_active" json:"is_active"`
}

func (d *Doctor) FullName() string {
	return fullName(d.FirstName, d.LastName)
}
