package softdelete

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/clinic/clinic/internal/domain/person"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

const (
	emailConstraint = "users_email_active_uniq"
	slotConstraint  = "appointments_active_slot_uniq"
)

// ErrEmailTaken is returned when restoring a user whose email now belongs to
// another active user.
var ErrEmailTaken = apperr.Conflict("email was re-registered by another user")

// Store flips soft-delete flags. Each method only matches rows whose current
// flag is the opposite of deleted, so a repeat call reports no match.
type Store interface {
	// SetProfileDeleted flips a role profile and returns its user id.
	SetProfileDeleted(ctx context.Context, kind Kind, id int64, deleted bool) (userID int64, ok bool, err error)
	// SetUserDeleted flips the user row, provided it carries role.
	SetUserDeleted(ctx context.Context, userID int64, role person.Role, deleted bool) (bool, error)
	SetDeleted(ctx context.Context, kind Kind, id int64, deleted bool) (bool, error)
}

type storePG struct {
	pool db.Querier
}

func NewStore(pool db.Querier) Store {
	return &storePG{pool: pool}
}

// flagSet is shared by every table: the CHECK constraint ties deleted_at to
// is_deleted.
const flagSet = `is_deleted = $2, deleted_at = CASE WHEN $2 THEN NOW() ELSE NULL END`

func (s *storePG) SetProfileDeleted(ctx context.Context, kind Kind, id int64, deleted bool) (int64, bool, error) {
	var userID int64
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`UPDATE `+kind.table()+` SET `+flagSet+` WHERE id = $1 AND is_deleted = NOT $2 RETURNING user_id`,
		id, deleted,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("flag %s: %w", kind, err)
	}
	return userID, true, nil
}

func (s *storePG) SetUserDeleted(ctx context.Context, userID int64, role person.Role, deleted bool) (bool, error) {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE users SET `+flagSet+` WHERE id = $1 AND is_deleted = NOT $2 AND role = $3`,
		userID, deleted, string(role),
	)
	if db.IsUniqueViolation(err, emailConstraint) {
		return false, ErrEmailTaken
	}
	if err != nil {
		return false, fmt.Errorf("flag user: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *storePG) SetDeleted(ctx context.Context, kind Kind, id int64, deleted bool) (bool, error) {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE `+kind.table()+` SET `+flagSet+` WHERE id = $1 AND is_deleted = NOT $2`,
		id, deleted,
	)
	if db.IsUniqueViolation(err, slotConstraint) {
		return false, scheduling.ErrSlotUnavailable
	}
	if err != nil {
		return false, fmt.Errorf("flag %s: %w", kind, err)
	}
	return tag.RowsAffected() == 1, nil
}
