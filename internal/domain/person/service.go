package person

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/civil"
)

var ErrInvalidCredentials = &apperr.Error{Kind: apperr.ErrValidation, Msg: "invalid email or password"}

// PasswordHasher hashes and verifies opaque credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BcryptHasher is the production PasswordHasher.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

func (h BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

type Service struct {
	tx       db.Transactor
	users    UserRepository
	patients PatientRepository
	doctors  DoctorRepository
	admins   AdminRepository
	hasher   PasswordHasher
}

func NewService(tx db.Transactor, users UserRepository, patients PatientRepository,
	doctors DoctorRepository, admins AdminRepository, hasher PasswordHasher) *Service {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	return &Service{tx: tx, users: users, patients: patients, doctors: doctors, admins: admins, hasher: hasher}
}

func validateUserFields(f UserFields) error {
	if strings.TrimSpace(f.Name) == "" {
		return apperr.Validation("name is required")
	}
	if err := validateEmail(f.Email); err != nil {
		return err
	}
	if f.Password == "" {
		return apperr.Validation("password is required")
	}
	return nil
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperr.Validation("email is required")
	}
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 {
		return apperr.Validation("email %q is not valid", email)
	}
	return nil
}

func validateBloodType(bt string) error {
	if bt != "" && !bloodTypes[bt] {
		return apperr.Validation("blood_type %q is not valid", bt)
	}
	return nil
}

// ValidateWindow checks a doctor's working window.
func ValidateWindow(from, until civil.TimeOfDay) error {
	if !from.Valid() || !until.Valid() {
		return apperr.Validation("working hours must fall within a single day")
	}
	if from >= until {
		return apperr.Validation("from_time %s must be before until_time %s", from, until)
	}
	return nil
}

func (s *Service) newUser(f UserFields, role Role) (*User, error) {
	hash, err := s.hasher.Hash(f.Password)
	if err != nil {
		return nil, err
	}
	return &User{
		Email:        strings.TrimSpace(f.Email),
		PasswordHash: hash,
		Name:         strings.TrimSpace(f.Name),
		Phone:        strings.TrimSpace(f.Phone),
		Role:         role,
	}, nil
}

// -- Registration --

// RegisterPatient creates the user and its patient profile as one unit.
func (s *Service) RegisterPatient(ctx context.Context, r PatientRegistration) (*Patient, error) {
	if err := validateUserFields(r.UserFields); err != nil {
		return nil, err
	}
	if err := validateBloodType(r.BloodType); err != nil {
		return nil, err
	}
	u, err := s.newUser(r.UserFields, RolePatient)
	if err != nil {
		return nil, err
	}
	p := &Patient{
		Address:     r.Address,
		DateOfBirth: r.DateOfBirth,
		BloodType:   r.BloodType,
		InsuranceID: r.InsuranceID,
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		p.UserID = u.ID
		if err := s.patients.Create(ctx, p); err != nil {
			return fmt.Errorf("create patient profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.User = *u
	return p, nil
}

func (s *Service) RegisterDoctor(ctx context.Context, r DoctorRegistration) (*Doctor, error) {
	if err := validateUserFields(r.UserFields); err != nil {
		return nil, err
	}
	if err := ValidateWindow(r.From, r.Until); err != nil {
		return nil, err
	}
	u, err := s.newUser(r.UserFields, RoleDoctor)
	if err != nil {
		return nil, err
	}
	d := &Doctor{
		Specialization: r.Specialization,
		Department:     r.Department,
		From:           r.From,
		Until:          r.Until,
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		d.UserID = u.ID
		if err := s.doctors.Create(ctx, d); err != nil {
			return fmt.Errorf("create doctor profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.User = *u
	return d, nil
}

func (s *Service) RegisterAdmin(ctx context.Context, r AdminRegistration) (*Admin, error) {
	if err := validateUserFields(r.UserFields); err != nil {
		return nil, err
	}
	u, err := s.newUser(r.UserFields, RoleAdmin)
	if err != nil {
		return nil, err
	}
	a := &Admin{RoleDetail: r.RoleDetail}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		a.UserID = u.ID
		if err := s.admins.Create(ctx, a); err != nil {
			return fmt.Errorf("create admin profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.User = *u
	return a, nil
}

// -- Lookup --

func (s *Service) GetPatient(ctx context.Context, id int64, includeDeleted bool) (*Patient, error) {
	return s.patients.GetByID(ctx, id, includeDeleted)
}

func (s *Service) GetDoctor(ctx context.Context, id int64, includeDeleted bool) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id, includeDeleted)
}

func (s *Service) GetAdmin(ctx context.Context, id int64, includeDeleted bool) (*Admin, error) {
	return s.admins.GetByID(ctx, id, includeDeleted)
}

func (s *Service) ListPatients(ctx context.Context, f ListFilter) ([]*Patient, int, error) {
	return s.patients.List(ctx, f)
}

func (s *Service) ListDoctors(ctx context.Context, f ListFilter) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, f)
}

func (s *Service) ListAdmins(ctx context.Context, f ListFilter) ([]*Admin, int, error) {
	return s.admins.List(ctx, f)
}

// -- Updates --

// applyUserUpdate mutates u in place and re-hashes a changed password.
func (s *Service) applyUserUpdate(u *User, upd UserUpdate) error {
	if upd.Name != nil {
		if strings.TrimSpace(*upd.Name) == "" {
			return apperr.Validation("name cannot be empty")
		}
		u.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Email != nil {
		if err := validateEmail(*upd.Email); err != nil {
			return err
		}
		u.Email = strings.TrimSpace(*upd.Email)
	}
	if upd.Phone != nil {
		u.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.Password != nil {
		if *upd.Password == "" {
			return apperr.Validation("password cannot be empty")
		}
		hash, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
	}
	return nil
}

func (u UserUpdate) empty() bool {
	return u.Email == nil && u.Password == nil && u.Name == nil && u.Phone == nil
}

// UpdatePatient applies a partial update to a visible patient and its user.
func (s *Service) UpdatePatient(ctx context.Context, id int64, upd PatientUpdate) (*Patient, error) {
	var out *Patient
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.patients.GetByID(ctx, id, false)
		if err != nil {
			return err
		}
		if err := s.applyUserUpdate(&p.User, upd.UserUpdate); err != nil {
			return err
		}
		if upd.Address != nil {
			p.Address = *upd.Address
		}
		if upd.DateOfBirth != nil {
			p.DateOfBirth = upd.DateOfBirth
		}
		if upd.BloodType != nil {
			if err := validateBloodType(*upd.BloodType); err != nil {
				return err
			}
			p.BloodType = *upd.BloodType
		}
		if upd.InsuranceID != nil {
			p.InsuranceID = *upd.InsuranceID
		}
		if !upd.UserUpdate.empty() {
			if err := s.users.Update(ctx, &p.User); err != nil {
				return err
			}
		}
		if err := s.patients.Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *Service) UpdateDoctor(ctx context.Context, id int64, upd DoctorUpdate) (*Doctor, error) {
	var out *Doctor
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		d, err := s.doctors.GetByID(ctx, id, false)
		if err != nil {
			return err
		}
		if err := s.applyUserUpdate(&d.User, upd.UserUpdate); err != nil {
			return err
		}
		if upd.Specialization != nil {
			d.Specialization = *upd.Specialization
		}
		if upd.Department != nil {
			d.Department = *upd.Department
		}
		if upd.From != nil {
			d.From = *upd.From
		}
		if upd.Until != nil {
			d.Until = *upd.Until
		}
		if err := ValidateWindow(d.From, d.Until); err != nil {
			return err
		}
		if !upd.UserUpdate.empty() {
			if err := s.users.Update(ctx, &d.User); err != nil {
				return err
			}
		}
		if err := s.doctors.Update(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

func (s *Service) UpdateAdmin(ctx context.Context, id int64, upd AdminUpdate) (*Admin, error) {
	var out *Admin
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.admins.GetByID(ctx, id, false)
		if err != nil {
			return err
		}
		if err := s.applyUserUpdate(&a.User, upd.UserUpdate); err != nil {
			return err
		}
		if upd.RoleDetail != nil {
			a.RoleDetail = *upd.RoleDetail
		}
		if !upd.UserUpdate.empty() {
			if err := s.users.Update(ctx, &a.User); err != nil {
				return err
			}
		}
		if err := s.admins.Update(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// -- Authentication --

// Authenticate verifies credentials against a visible user and resolves the
// user's role profile. A user whose profile is missing or deleted while the
// user itself is visible is reported as inconsistent.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	profileID, deleted, err := s.profileOf(ctx, u)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Inconsistent(fmt.Sprintf("user %d has no %s profile", u.ID, u.Role))
	}
	if err != nil {
		return nil, err
	}
	if deleted {
		return nil, apperr.Inconsistent(fmt.Sprintf("user %d has a deleted %s profile", u.ID, u.Role))
	}
	return &Account{User: *u, ProfileID: profileID}, nil
}

func (s *Service) profileOf(ctx context.Context, u *User) (int64, bool, error) {
	switch u.Role {
	case RolePatient:
		p, err := s.patients.GetByUserID(ctx, u.ID)
		if err != nil {
			return 0, false, err
		}
		return p.ID, p.IsDeleted, nil
	case RoleDoctor:
		d, err := s.doctors.GetByUserID(ctx, u.ID)
		if err != nil {
			return 0, false, err
		}
		return d.ID, d.IsDeleted, nil
	case RoleAdmin:
		a, err := s.admins.GetByUserID(ctx, u.ID)
		if err != nil {
			return 0, false, err
		}
		return a.ID, a.IsDeleted, nil
	}
	return 0, false, apperr.Inconsistent(fmt.Sprintf("user %d has unknown role %q", u.ID, u.Role))
}
