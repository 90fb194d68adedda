package model

import (
	"time"
)

type UserRole string

const (
	UserRoleAdmin        UserRole = "Admin"
	UserRoleDoctor       UserRole = "Doctor"
	UserRoleNurse        UserRole = "Nurse"
	UserRoleReceptionist UserRole = "Receptionist"
	UserRoleUser         UserRole = "User"
)

type User struct {
	Base
	Username      string     `db:"username" json:"username"`
	Email         string     `db:"email" json:"email"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	FirstName     string     `db:"first_name" json:"first_name"`
	LastName      string     `db:"last_name" json:"last_name"`
	Role          UserRole   `db:"role" json:"role"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	LastLoginDate *time.Time `db:"last_login_date" json:"last_login_date,omitempty"`
	PhoneNumber   string     `db:"phone_number" json:"phone_number,omitempty"`
	DoctorID      *int64     `db:"doctor_id" json:"doctor_id,omitempty"`
}

func (u *User) FullName() string {
	return fullName(u.FirstName, u.LastName)
}
