package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct {
	pool *pgxpool.Pool
	repos
}

type repos struct {
	tickets       TicketRepository
	closeRequests CloseRequestRepository
	reopenEvents  ReopenEventRepository
	history       TicketHistoryRepository
}

func newRepos(db DBTX) repos {
	return repos{
		tickets:       NewTicketRepository(db),
		closeRequests: NewCloseRequestRepository(db),
		reopenEvents:  NewReopenEventRepository(db),
		history:       NewTicketHistoryRepository(db),
	}
}

func (r repos) Tickets() TicketRepository { return r.tickets }
func (r repos) CloseRequests() CloseRequestRepository { return r.closeRequests }
func (r repos) ReopenEvents() ReopenEventRepository { return r.reopenEvents }
func (r repos) History() TicketHistoryRepository { return r.history }

// NewPostgresStore builds a Store backed by a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool, repos: newRepos(pool)}
}

func (s *postgresStore) RepairRecords() RepairRecordRepository {
	return NewRepairRecordRepository(s.pool)
}

func (s *postgresStore) ReopenConfigs() ReopenConfigRepository {
	return NewReopenConfigRepository(s.pool)
}

func (s *postgresStore) Staff() StaffRepository {
	return NewStaffRepository(s.pool)
}

func (s *postgresStore) WithTicketLock(ctx context.Context, ticketID string, fn TxFunc) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var id string
		if err := tx.QueryRow(ctx, `SELECT id FROM tickets WHERE id=$1 FOR UPDATE`, ticketID).Scan(&id); err != nil {
			return mapNoRows(err)
		}
		return fn(ctx, newRepos(tx))
	})
}

func (s *postgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return s.pool.Ping(ctx)
}
