package operator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/converge-ai/support-platform/internal/model"
	"github.com/converge-ai/support-platform/pkg/metrics"
)

// PostgresPool is the production Pool. Load changes use single guarded UPDATE
// statements so the row lock serializes concurrent adjustments: two dispatch
// calls racing on the same operator cannot both increment past max_load.
type PostgresPool struct {
	db *sql.DB
}

// NewPostgresPool opens a connection pool against the given DSN.
func NewPostgresPool(dsn string) (*PostgresPool, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &PostgresPool{db: db}, nil
}

// Close releases the connection pool.
func (p *PostgresPool) Close() error {
	return p.db.Close()
}

const operatorColumns = "operator_id, tenant_id, name, online, current_load, max_load, created_at"

// ListAvailable returns online operators with spare capacity in deterministic
// assignment order.
func (p *PostgresPool) ListAvailable(ctx context.Context, tenantID string) ([]model.Operator, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+operatorColumns+`
		FROM operators
		WHERE tenant_id = $1 AND online AND current_load < max_load
		ORDER BY current_load ASC, created_at ASC, operator_id ASC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list operators: %w", err)
	}
	defer rows.Close()

	var out []model.Operator
	for rows.Next() {
		var op model.Operator
		if err := scanOperator(rows, &op); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// AdjustLoad applies delta in one guarded statement. The WHERE clause refuses
// increments that would pass max_load or land on an offline operator;
// decrements floor at zero via GREATEST.
func (p *PostgresPool) AdjustLoad(ctx context.Context, operatorID string, delta int) (*model.Operator, error) {
	var row *sql.Row
	if delta > 0 {
		row = p.db.QueryRowContext(ctx, `
			UPDATE operators
			SET current_load = current_load + $2
			WHERE operator_id = $1 AND online AND current_load + $2 <= max_load
			RETURNING `+operatorColumns,
			operatorID, delta,
		)
	} else {
		row = p.db.QueryRowContext(ctx, `
			UPDATE operators
			SET current_load = GREATEST(current_load + $2, 0)
			WHERE operator_id = $1
			RETURNING `+operatorColumns,
			operatorID, delta,
		)
	}

	var op model.Operator
	if err := scanOperator(row, &op); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if delta > 0 {
				// Distinguish missing from saturated.
				if _, gerr := p.Get(ctx, operatorID); gerr == nil {
					return nil, ErrSaturated
				}
			}
			return nil, ErrNotFound
		}
		return nil, err
	}

	metrics.OperatorLoad.WithLabelValues(op.TenantID, op.ID).Set(float64(op.CurrentLoad))

	return &op, nil
}

// SetAvailability flips an operator online or offline.
func (p *PostgresPool) SetAvailability(ctx context.Context, operatorID string, online bool) (*model.Operator, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE operators
		SET online = $2
		WHERE operator_id = $1
		RETURNING `+operatorColumns,
		operatorID, online,
	)

	var op model.Operator
	if err := scanOperator(row, &op); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &op, nil
}

// Get returns one operator.
func (p *PostgresPool) Get(ctx context.Context, operatorID string) (*model.Operator, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+operatorColumns+`
		FROM operators
		WHERE operator_id = $1`,
		operatorID,
	)

	var op model.Operator
	if err := scanOperator(row, &op); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &op, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOperator(s scanner, op *model.Operator) error {
	return s.Scan(&op.ID, &op.TenantID, &op.Name, &op.Online, &op.CurrentLoad, &op.MaxLoad, &op.CreatedAt)
}
