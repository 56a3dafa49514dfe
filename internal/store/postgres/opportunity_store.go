package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const crossSelectCols = `id, asset_id, symbol, name, investment, result, generation, detected_at`

const cycleSelectCols = `id, exchange, anchor, path, steps, investment,
	final_amount, profit, profit_percentage, generation, detected_at`

// InsertCross stores a batch of cross-exchange opportunities. Rows whose id
// already exists are skipped.
func (s *OpportunityStore) InsertCross(ctx context.Context, opps []domain.CrossOpportunity) error {
	if len(opps) == 0 {
		return nil
	}
	const query = `
		INSERT INTO cross_opportunities (
			id, asset_id, symbol, name, investment,
			buy_exchange, buy_price, sell_exchange, sell_price,
			profit_percentage, profit_after_fees, result, generation, detected_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14
		) ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, o := range opps {
		result, err := json.Marshal(o.Result)
		if err != nil {
			return fmt.Errorf("postgres: marshal cross result %s: %w", o.ID, err)
		}
		r := o.Result
		batch.Queue(query,
			o.ID, o.AssetID, o.Symbol, o.Name, o.Investment,
			r.Lowest.Exchange, r.Lowest.Price, r.Highest.Exchange, r.Highest.Price,
			r.ProfitPercentage, r.ProfitAfterFees, result, int64(o.Generation), o.DetectedAt,
		)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: insert %d cross opportunities: %w", len(opps), err)
	}
	return nil
}

// InsertCycles stores a batch of triangular cycles. Rows whose id already
// exists are skipped.
func (s *OpportunityStore) InsertCycles(ctx context.Context, cycles []domain.TriangularCycle) error {
	if len(cycles) == 0 {
		return nil
	}
	const query = `
		INSERT INTO triangular_cycles (
			id, exchange, anchor, path, steps, investment,
			final_amount, profit, profit_percentage, generation, detected_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11
		) ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, c := range cycles {
		steps, err := json.Marshal(c.Steps)
		if err != nil {
			return fmt.Errorf("postgres: marshal cycle steps %s: %w", c.ID, err)
		}
		batch.Queue(query,
			c.ID, c.Exchange, string(c.Anchor), pathStrings(c.Path), steps, c.Investment,
			c.FinalAmount, c.Profit, c.ProfitPercentage, int64(c.Generation), c.DetectedAt,
		)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: insert %d triangular cycles: %w", len(cycles), err)
	}
	return nil
}

// ListCross returns cross-exchange opportunities, newest first.
func (s *OpportunityStore) ListCross(ctx context.Context, opts domain.ListOpts) ([]domain.CrossOpportunity, error) {
	query, args := listQuery(`SELECT `+crossSelectCols+` FROM cross_opportunities`, "detected_at", opts)
	return s.queryCross(ctx, query, args...)
}

// ListCycles returns triangular cycles, newest first.
func (s *OpportunityStore) ListCycles(ctx context.Context, opts domain.ListOpts) ([]domain.TriangularCycle, error) {
	query, args := listQuery(`SELECT `+cycleSelectCols+` FROM triangular_cycles`, "detected_at", opts)
	return s.queryCycles(ctx, query, args...)
}

// ListCrossBefore returns every cross-exchange opportunity detected strictly
// before the cutoff, oldest first.
func (s *OpportunityStore) ListCrossBefore(ctx context.Context, before time.Time) ([]domain.CrossOpportunity, error) {
	return s.queryCross(ctx,
		`SELECT `+crossSelectCols+` FROM cross_opportunities WHERE detected_at < $1 ORDER BY detected_at`,
		before,
	)
}

// ListCyclesBefore returns every triangular cycle detected strictly before
// the cutoff, oldest first.
func (s *OpportunityStore) ListCyclesBefore(ctx context.Context, before time.Time) ([]domain.TriangularCycle, error) {
	return s.queryCycles(ctx,
		`SELECT `+cycleSelectCols+` FROM triangular_cycles WHERE detected_at < $1 ORDER BY detected_at`,
		before,
	)
}

func (s *OpportunityStore) queryCross(ctx context.Context, query string, args ...any) ([]domain.CrossOpportunity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list cross opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.CrossOpportunity
	for rows.Next() {
		var (
			o      domain.CrossOpportunity
			result []byte
			gen    int64
		)
		if err := rows.Scan(&o.ID, &o.AssetID, &o.Symbol, &o.Name, &o.Investment, &result, &gen, &o.DetectedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan cross opportunity: %w", err)
		}
		if err := json.Unmarshal(result, &o.Result); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal cross result %s: %w", o.ID, err)
		}
		o.Generation = uint64(gen)
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list cross opportunities rows: %w", err)
	}
	return opps, nil
}

func (s *OpportunityStore) queryCycles(ctx context.Context, query string, args ...any) ([]domain.TriangularCycle, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list triangular cycles: %w", err)
	}
	defer rows.Close()

	var cycles []domain.TriangularCycle
	for rows.Next() {
		var (
			c      domain.TriangularCycle
			anchor string
			path   []string
			steps  []byte
			gen    int64
		)
		if err := rows.Scan(
			&c.ID, &c.Exchange, &anchor, &path, &steps, &c.Investment,
			&c.FinalAmount, &c.Profit, &c.ProfitPercentage, &gen, &c.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan triangular cycle: %w", err)
		}
		if err := json.Unmarshal(steps, &c.Steps); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal cycle steps %s: %w", c.ID, err)
		}
		c.Anchor = domain.Asset(anchor)
		for i := 0; i < len(c.Path) && i < len(path); i++ {
			c.Path[i] = domain.Asset(path[i])
		}
		c.Generation = uint64(gen)
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list triangular cycles rows: %w", err)
	}
	return cycles, nil
}

// listQuery appends the time filters on column, newest-first ordering and
// pagination of opts.
func listQuery(base, column string, opts domain.ListOpts) (string, []any) {
	query := base + ` WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND %s >= $%d", column, argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND %s <= $%d", column, argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY " + column + " DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

func pathStrings(p [4]domain.Asset) []string {
	out := make([]string, len(p))
	for i, a := range p {
		out[i] = string(a)
	}
	return out
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
