package person

import (
	"context"

	"github.com/clinic/clinic/internal/platform/apperr"
)

var (
	ErrUserNotFound    = apperr.NotFound("user not found")
	ErrPatientNotFound = apperr.NotFound("patient not found")
	ErrDoctorNotFound  = apperr.NotFound("doctor not found")
	ErrAdminNotFound   = apperr.NotFound("admin not found")
	ErrDuplicateEmail  = apperr.Conflict("email is already registered")
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	// GetByEmail returns a non-deleted user by case-insensitive email.
	GetByEmail(ctx context.Context, email string) (*User, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*Patient, error)
	GetByUserID(ctx context.Context, userID int64) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, f ListFilter) ([]*Patient, int, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*Doctor, error)
	GetByUserID(ctx context.Context, userID int64) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	List(ctx context.Context, f ListFilter) ([]*Doctor, int, error)
}

type AdminRepository interface {
	Create(ctx context.Context, a *Admin) error
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*Admin, error)
	GetByUserID(ctx context.Context, userID int64) (*Admin, error)
	Update(ctx context.Context, a *Admin) error
	List(ctx context.Context, f ListFilter) ([]*Admin, int, error)
}
