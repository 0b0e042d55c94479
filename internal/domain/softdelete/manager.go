package softdelete

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/metrics"
)

const (
	opDelete  = "delete"
	opRestore = "restore"
)

// Result describes an applied soft delete or restore.
type Result struct {
	Kind    Kind  `json:"kind"`
	ID      int64 `json:"id"`
	Deleted bool  `json:"deleted"`
}

type Manager struct {
	tx      db.Transactor
	store   Store
	metrics *metrics.RecordMetrics
	events  events.Publisher
}

func NewManager(tx db.Transactor, store Store) *Manager {
	return &Manager{tx: tx, store: store, events: events.Nop{}}
}

func (m *Manager) SetMetrics(rm *metrics.RecordMetrics) { m.metrics = rm }
func (m *Manager) SetPublisher(p events.Publisher)      { m.events = p }

// SoftDelete hides the row. Deleting an already deleted row is NotFound.
func (m *Manager) SoftDelete(ctx context.Context, kind Kind, id int64) error {
	return m.apply(ctx, kind, id, true)
}

// Restore is the exact inverse of SoftDelete.
func (m *Manager) Restore(ctx context.Context, kind Kind, id int64) error {
	return m.apply(ctx, kind, id, false)
}

func (m *Manager) apply(ctx context.Context, kind Kind, id int64, deleted bool) error {
	op := opRestore
	if deleted {
		op = opDelete
	}
	if !kind.Valid() {
		return apperr.Validation("unknown record kind %q", kind)
	}

	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		if kind.PersonRooted() {
			return m.flipPerson(ctx, kind, id, deleted)
		}
		ok, err := m.store.SetDeleted(ctx, kind, id, deleted)
		if err != nil {
			return err
		}
		if !ok {
			return kinds[kind].notFound
		}
		return nil
	})
	m.metrics.ObserveOp(string(kind), op, err)
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().Str("kind", string(kind)).Int64("id", id).Str("op", op).Msg("soft delete")
	typ := "record.deleted"
	if !deleted {
		typ = "record.restored"
	}
	events.Emit(ctx, m.events, typ, string(kind), id, Result{Kind: kind, ID: id, Deleted: deleted},
		"records", kinds[kind].segment)
	return nil
}

// flipPerson updates the profile and then its user in the caller's
// transaction. Any mismatch aborts both.
func (m *Manager) flipPerson(ctx context.Context, kind Kind, id int64, deleted bool) error {
	info := kinds[kind]
	userID, ok, err := m.store.SetProfileDeleted(ctx, kind, id, deleted)
	if err != nil {
		return err
	}
	if !ok {
		return info.notFound
	}
	ok, err = m.store.SetUserDeleted(ctx, userID, info.role, deleted)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Inconsistent(fmt.Sprintf("%s %d: user %d is not a matching %s row", kind, id, userID, info.role))
	}
	return nil
}
