package person

import (
	"time"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/civil"
	"github.com/clinic/clinic/pkg/pagination"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// User is the person row shared by every role.
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Name         string     `json:"name"`
	Phone        string     `json:"phone"`
	Role         Role       `json:"role"`
	IsDeleted    bool       `json:"is_deleted"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Patient is a patient profile joined with its user.
type Patient struct {
	ID          int64       `json:"id"`
	UserID      int64       `json:"user_id"`
	Address     string      `json:"address"`
	DateOfBirth *civil.Date `json:"date_of_birth,omitempty"`
	BloodType   string      `json:"blood_type"`
	InsuranceID string      `json:"insurance_id"`
	IsDeleted   bool        `json:"is_deleted"`
	DeletedAt   *time.Time  `json:"deleted_at,omitempty"`
	User        User        `json:"user"`
}

// Visible reports whether neither the profile nor its user is soft-deleted.
func (p *Patient) Visible() bool { return !p.IsDeleted && !p.User.IsDeleted }

// Doctor is a doctor profile joined with its user. The working window is
// [From, Until) in clinic wall-clock time.
type Doctor struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	Specialization string          `json:"specialization"`
	Department     string          `json:"department"`
	From           civil.TimeOfDay `json:"from_time"`
	Until          civil.TimeOfDay `json:"until_time"`
	IsDeleted      bool            `json:"is_deleted"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty"`
	User           User            `json:"user"`
}

func (d *Doctor) Visible() bool { return !d.IsDeleted && !d.User.IsDeleted }

// Admin is an admin profile joined with its user.
type Admin struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	RoleDetail string     `json:"role_detail"`
	IsDeleted  bool       `json:"is_deleted"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	User       User       `json:"user"`
}

func (a *Admin) Visible() bool { return !a.IsDeleted && !a.User.IsDeleted }

// Account is a verified login: the user and the id of its role profile.
type Account struct {
	User      User  `json:"user"`
	ProfileID int64 `json:"profile_id"`
}

// UserFields are the person attributes supplied on registration.
type UserFields struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

type PatientRegistration struct {
	UserFields
	Address     string      `json:"address"`
	DateOfBirth *civil.Date `json:"date_of_birth"`
	BloodType   string      `json:"blood_type"`
	InsuranceID string      `json:"insurance_id"`
}

type DoctorRegistration struct {
	UserFields
	Specialization string          `json:"specialization"`
	Department     string          `json:"department"`
	From           civil.TimeOfDay `json:"from_time"`
	Until          civil.TimeOfDay `json:"until_time"`
}

type AdminRegistration struct {
	UserFields
	RoleDetail string `json:"role_detail"`
}

// UserUpdate holds optional changes to the user row; nil fields are kept.
type UserUpdate struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Name     *string `json:"name"`
	Phone    *string `json:"phone"`
}

type PatientUpdate struct {
	UserUpdate
	Address     *string     `json:"address"`
	DateOfBirth *civil.Date `json:"date_of_birth"`
	BloodType   *string     `json:"blood_type"`
	InsuranceID *string     `json:"insurance_id"`
}

type DoctorUpdate struct {
	UserUpdate
	Specialization *string          `json:"specialization"`
	Department     *string          `json:"department"`
	From           *civil.TimeOfDay `json:"from_time"`
	Until          *civil.TimeOfDay `json:"until_time"`
}

type AdminUpdate struct {
	UserUpdate
	RoleDetail *string `json:"role_detail"`
}

// ListFilter narrows person listings. Specialization and Department only
// apply to doctors.
type ListFilter struct {
	Query          string
	Specialization string
	Department     string
	Visibility     db.Visibility
	Page           pagination.Params
}

var bloodTypes = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}
