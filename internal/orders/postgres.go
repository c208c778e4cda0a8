package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/po-approvals/internal/roles"
)

// Schema creates the PostgreSQL tables used by PostgresStore. It is safe to
// run on every start.
const Schema = `
CREATE TABLE IF NOT EXISTS purchase_orders (
    id            TEXT PRIMARY KEY,
    item_name     TEXT        NOT NULL,
    quantity      INTEGER     NOT NULL CHECK (quantity > 0),
    cost          NUMERIC     NOT NULL CHECK (cost >= 0),
    description   TEXT,
    vendor_name   TEXT        NOT NULL,
    requester_id  TEXT        NOT NULL,
    status        TEXT        NOT NULL CHECK (status IN ('pending','awaiting_deputy_md','awaiting_md','approved','denied')),
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS purchase_orders_requester_idx ON purchase_orders (requester_id, created_at DESC);
CREATE INDEX IF NOT EXISTS purchase_orders_status_idx ON purchase_orders (status, created_at DESC);

CREATE TABLE IF NOT EXISTS purchase_order_approvals (
    id            TEXT PRIMARY KEY,
    order_id      TEXT        NOT NULL REFERENCES purchase_orders (id),
    approver_id   TEXT        NOT NULL,
    approver_role TEXT        NOT NULL,
    decision      TEXT        NOT NULL CHECK (decision IN ('approved','denied')),
    comment       TEXT,
    decided_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS purchase_order_approvals_order_idx ON purchase_order_approvals (order_id, decided_at);
`

const orderColumns = `id, item_name, quantity, cost::text, COALESCE(description, ''), vendor_name,
       requester_id, status, created_at, updated_at`

const approvalColumns = `id, order_id, approver_id, approver_role, decision, COALESCE(comment, ''), decided_at`

// PostgresStore implements Store on PostgreSQL through a pgx pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore connects a pool to databaseURL and verifies it.
func NewPostgresStore(ctx context.Context, databaseURL string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{db: pool}, nil
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) CreateOrder(ctx context.Context, o *PurchaseOrder) error {
	query := `
		INSERT INTO purchase_orders
		    (id, item_name, quantity, cost, description, vendor_name,
		     requester_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, NULLIF($5, ''), $6, $7, $8, $9, $10)
	`
	_, err := s.db.Exec(ctx, query,
		o.ID, o.ItemName, o.Quantity, o.Cost.String(), o.Description, o.VendorName,
		o.RequesterID, string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%s: %w", o.ID, ErrOrderExists)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*PurchaseOrder, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, f ListFilter) ([]*PurchaseOrder, error) {
	var (
		conds []string
		args  []any
	)
	if f.RequesterID != "" {
		args = append(args, f.RequesterID)
		conds = append(conds, fmt.Sprintf("requester_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.MaxCost != nil {
		args = append(args, f.MaxCost.String())
		conds = append(conds, fmt.Sprintf("cost <= $%d::numeric", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM purchase_orders`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, EffectiveLimit(f.Limit))
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := make([]*PurchaseOrder, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListApprovals(ctx context.Context, orderID string) ([]*ApprovalRecord, error) {
	query := `SELECT ` + approvalColumns + `
		FROM purchase_order_approvals
		WHERE order_id = $1
		ORDER BY decided_at ASC, id ASC`

	rows, err := s.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	out := make([]*ApprovalRecord, 0)
	for rows.Next() {
		rec, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AppendApproval locks the order row, compares its status, then updates the
// order and inserts the record in the same transaction.
func (s *PostgresStore) AppendApproval(ctx context.Context, orderID string, from, to Status, rec *ApprovalRecord) (*PurchaseOrder, error) {
	if err := checkAppend(orderID, from, to, rec); err != nil {
		return nil, err
	}

	var updated *PurchaseOrder
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM purchase_orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s: %w", orderID, ErrOrderNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if Status(current) != from {
			return fmt.Errorf("%s: expected %s, found %s: %w", orderID, from, current, ErrConcurrentModification)
		}

		row := tx.QueryRow(ctx, `
			UPDATE purchase_orders SET status = $2, updated_at = $3
			WHERE id = $1
			RETURNING `+orderColumns,
			orderID, string(to), rec.DecidedAt,
		)
		if updated, err = scanOrder(row); err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO purchase_order_approvals
			    (id, order_id, approver_id, approver_role, decision, comment, decided_at)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
			rec.ID, rec.OrderID, rec.ApproverID, string(rec.ApproverRole),
			string(rec.Decision), rec.Comment, rec.DecidedAt,
		)
		if err != nil {
			return fmt.Errorf("insert approval: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(sc rowScanner) (*PurchaseOrder, error) {
	var (
		o      PurchaseOrder
		cost   string
		status string
	)
	err := sc.Scan(
		&o.ID, &o.ItemName, &o.Quantity, &cost, &o.Description, &o.VendorName,
		&o.RequesterID, &status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if o.Cost, err = decimal.NewFromString(cost); err != nil {
		return nil, fmt.Errorf("parse cost %q: %w", cost, err)
	}
	o.Status = Status(status)
	return &o, nil
}

func scanApproval(sc rowScanner) (*ApprovalRecord, error) {
	var (
		r        ApprovalRecord
		role     string
		decision string
	)
	if err := sc.Scan(&r.ID, &r.OrderID, &r.ApproverID, &role, &decision, &r.Comment, &r.DecidedAt); err != nil {
		return nil, err
	}
	r.ApproverRole = roles.Role(role)
	r.Decision = Decision(decision)
	return &r, nil
}
