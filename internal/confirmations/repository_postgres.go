package confirmations

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var receiptColumns = []string{
	"booking_id",
	"confirmation_token",
	"store_id",
	"store_name",
	"service_id",
	"service_name",
	"technician_id",
	"starts_at",
	"customer_name",
	"customer_email",
	"confirmed_at",
}

// PostgresRepository stores receipts in the booking_confirmations table.
type PostgresRepository struct {
	db db
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("confirmations: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(d db) *PostgresRepository {
	return &PostgresRepository{db: d}
}

func (r *PostgresRepository) Record(ctx context.Context, rec Receipt) error {
	query, args, err := psql.Insert("booking_confirmations").
		Columns(receiptColumns...).
		Values(
			rec.BookingID,
			rec.Token,
			rec.StoreID,
			rec.StoreName,
			rec.ServiceID,
			rec.ServiceName,
			rec.TechnicianID,
			rec.StartsAt,
			rec.CustomerName,
			rec.CustomerEmail,
			rec.ConfirmedAt,
		).
		Suffix("ON CONFLICT (booking_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("confirmations: build insert: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("confirmations: insert receipt: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*Receipt, error) {
	query, args, err := psql.Select(receiptColumns...).
		From("booking_confirmations").
		Where(sq.Eq{"confirmation_token": token}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("confirmations: build select: %w", err)
	}
	rec, err := scanReceipt(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("confirmations: load receipt: %w", err)
	}
	return &rec, nil
}

func (r *PostgresRepository) ListByStore(ctx context.Context, f ListFilter) ([]Receipt, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	builder := psql.Select(receiptColumns...).
		From("booking_confirmations").
		Where(sq.Eq{"store_id": f.StoreID})
	if f.From != nil {
		builder = builder.Where(sq.GtOrEq{"starts_at": f.From.UTC()})
	}
	if f.To != nil {
		builder = builder.Where(sq.Lt{"starts_at": f.To.UTC()})
	}
	if f.ServiceID != "" {
		builder = builder.Where(sq.Eq{"service_id": f.ServiceID})
	}
	query, args, err := builder.OrderBy("starts_at", "booking_id").Limit(f.limit()).ToSql()
	if err != nil {
		return nil, fmt.Errorf("confirmations: build list: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("confirmations: list receipts: %w", err)
	}
	defer rows.Close()

	out := []Receipt{}
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("confirmations: scan receipt: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanReceipt(row pgx.Row) (Receipt, error) {
	var rec Receipt
	err := row.Scan(
		&rec.BookingID,
		&rec.Token,
		&rec.StoreID,
		&rec.StoreName,
		&rec.ServiceID,
		&rec.ServiceName,
		&rec.TechnicianID,
		&rec.StartsAt,
		&rec.CustomerName,
		&rec.CustomerEmail,
		&rec.ConfirmedAt,
	)
	return rec, err
}
