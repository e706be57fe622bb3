package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dextra-labs/dextra/internal/models"
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Store persists the engine's durable records: execution outcomes, flash
// settlement ledgers, protected transactions, and attack reports. Writes are
// append-only except for protected-transaction status updates.
type Store struct {
	pool DatabasePool
}

// NewStore creates a store over the given pool.
func NewStore(pool DatabasePool) *Store {
	return &Store{pool: pool}
}

// SaveExecutionRecord persists a terminal execution record.
func (s *Store) SaveExecutionRecord(ctx context.Context, rec *models.ExecutionRecord) error {
	route, err := json.Marshal(rec.Route)
	if err != nil {
		return fmt.Errorf("failed to encode route: %w", err)
	}

	query := `
		INSERT INTO execution_records (id, status, route, start_time, end_time, actual_output, total_fees, actual_slippage_bps)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.pool.Exec(ctx, query,
		rec.ID, string(rec.Status), route, rec.StartTime, rec.EndTime,
		rec.ActualOutput, rec.TotalFees, rec.ActualSlippageBps,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution record: %w", err)
	}
	return nil
}

// SaveFlashLedger persists a flash settlement ledger.
func (s *Store) SaveFlashLedger(ctx context.Context, ledger *models.FlashLedger) error {
	query := `
		INSERT INTO flash_ledgers (id, borrowed, flash_fee, repay_amount, final_balance, gross_profit, program_fee, net_profit, routes_count, total_fees, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.pool.Exec(ctx, query,
		ledger.ID, ledger.Borrowed, ledger.FlashFee, ledger.RepayAmount,
		ledger.FinalBalance, ledger.GrossProfit, ledger.ProgramFee, ledger.NetProfit,
		ledger.RoutesCount, ledger.TotalFees, ledger.StartTime, ledger.EndTime,
	)
	if err != nil {
		return fmt.Errorf("failed to save flash ledger: %w", err)
	}
	return nil
}

// SaveProtectedTransaction persists a protected transaction snapshot. Upserts
// on ID so status transitions overwrite the stored row.
func (s *Store) SaveProtectedTransaction(ctx context.Context, tx *models.ProtectedTransaction) error {
	params, err := json.Marshal(tx.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	mechanisms, err := json.Marshal(tx.Mechanisms)
	if err != nil {
		return fmt.Errorf("failed to encode mechanisms: %w", err)
	}

	query := `
		INSERT INTO protected_transactions (id, owner, params, protection_level, mechanisms, status, nonce, created_at, execution_deadline, protection_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id)
		DO UPDATE SET
			mechanisms = EXCLUDED.mechanisms,
			status = EXCLUDED.status,
			execution_deadline = EXCLUDED.execution_deadline
	`
	_, err = s.pool.Exec(ctx, query,
		tx.ID, tx.Owner, params, string(tx.Level), mechanisms, string(tx.Status),
		tx.Nonce, tx.CreatedAt, tx.ExecutionDeadline, tx.ProtectionFee,
	)
	if err != nil {
		return fmt.Errorf("failed to save protected transaction: %w", err)
	}
	return nil
}

// SaveAttackReport persists an attack report.
func (s *Store) SaveAttackReport(ctx context.Context, report *models.AttackReport) error {
	details, err := json.Marshal(report.Details)
	if err != nil {
		return fmt.Errorf("failed to encode attack details: %w", err)
	}

	query := `
		INSERT INTO attack_reports (id, reporter, details, reported_at, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET status = EXCLUDED.status
	`
	_, err = s.pool.Exec(ctx, query,
		report.ID, report.Reporter, details, report.ReportedAt, string(report.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to save attack report: %w", err)
	}
	return nil
}

// GetExecutionRecord loads one execution record by ID.
func (s *Store) GetExecutionRecord(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	query := `
		SELECT id, status, route, start_time, end_time, actual_output, total_fees, actual_slippage_bps
		FROM execution_records
		WHERE id = $1
	`

	var rec models.ExecutionRecord
	var status string
	var route []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &status, &route, &rec.StartTime, &rec.EndTime,
		&rec.ActualOutput, &rec.TotalFees, &rec.ActualSlippageBps,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution record: %w", err)
	}
	rec.Status = models.ExecutionStatus(status)
	if err := json.Unmarshal(route, &rec.Route); err != nil {
		return nil, fmt.Errorf("failed to decode route: %w", err)
	}
	return &rec, nil
}

// ListAttackReports returns reports in a given review status, newest first.
func (s *Store) ListAttackReports(ctx context.Context, status models.ReportStatus, limit int) ([]models.AttackReport, error) {
	query := `
		SELECT id, reporter, details, reported_at, status
		FROM attack_reports
		WHERE status = $1
		ORDER BY reported_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list attack reports: %w", err)
	}
	defer rows.Close()

	var out []models.AttackReport
	for rows.Next() {
		var report models.AttackReport
		var st string
		var details []byte
		if err := rows.Scan(&report.ID, &report.Reporter, &details, &report.ReportedAt, &st); err != nil {
			return nil, fmt.Errorf("failed to scan attack report: %w", err)
		}
		report.Status = models.ReportStatus(st)
		if err := json.Unmarshal(details, &report.Details); err != nil {
			return nil, fmt.Errorf("failed to decode attack details: %w", err)
		}
		out = append(out, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attack reports: %w", err)
	}
	return out, nil
}
