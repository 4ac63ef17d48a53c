package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrAlreadyFinalized is returned when a ledger entry that may be
	// written once has already been written.
	ErrAlreadyFinalized = errors.New("repository: entry already finalized")
	// ErrDuplicate is returned when a uniqueness rule rejects an insert.
	ErrDuplicate = errors.New("repository: duplicate entry")
	// ErrVersionConflict is returned when a versioned row was written by
	// someone else first.
	ErrVersionConflict = errors.New("repository: version conflict")
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx exposes the repositories that take part in a ticket transition.
type Tx interface {
	Tickets() TicketRepository
	CloseRequests() CloseRequestRepository
	ReopenEvents() ReopenEventRepository
	History() TicketHistoryRepository
}

// TxFunc is the body of a ticket transition.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the persistence boundary used by services.
type Store interface {
	Tx
	RepairRecords() RepairRecordRepository
	ReopenConfigs() ReopenConfigRepository
	Staff() StaffRepository

	// WithTicketLock runs fn in a single transaction while holding an
	// exclusive lock on the ticket. Writes made through tx are committed
	// only when fn returns nil. Returns ErrNotFound if the ticket does not
	// exist.
	WithTicketLock(ctx context.Context, ticketID string, fn TxFunc) error
	Ping(ctx context.Context) error
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
