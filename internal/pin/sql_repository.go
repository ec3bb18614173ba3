package pin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/pinmap/internal/db"
	"github.com/onnwee/pinmap/internal/tracing"
)

const pinColumns = `id, username, title, description, rating, lat, lng, geohash, created_at_ns`

// SQLRepository implements Repository on Postgres or SQLite.
type SQLRepository struct {
	db *db.DB
}

// NewSQLRepository creates a new SQLRepository.
func NewSQLRepository(database *db.DB) *SQLRepository {
	return &SQLRepository{db: database}
}

// Insert stores a new pin.
func (r *SQLRepository) Insert(ctx context.Context, p *Pin) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, r.db.System(), "pins", tracing.DBOperationInsert)
	defer func() { end(err) }()

	created := time.Now()
	if p.CreatedAt != nil {
		created = *p.CreatedAt
	}

	query := r.db.Rebind(`INSERT INTO pins (` + pinColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, query,
		p.ID, p.Username, p.Title, p.Description, p.Rating, p.Lat, p.Long, p.Geohash, created.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert pin: %w", err)
	}
	return nil
}

// GetByID retrieves a pin by its ID.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*Pin, error) {
	ctx, end := tracing.StartDBSpan(ctx, r.db.System(), "pins", tracing.DBOperationQuery)

	query := r.db.Rebind(`SELECT ` + pinColumns + ` FROM pins WHERE id = ?`)
	p, err := scanPin(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		end(nil)
		return nil, ErrPinNotFound
	}
	end(err)
	if err != nil {
		return nil, fmt.Errorf("failed to get pin: %w", err)
	}
	return p, nil
}

// List returns all pins ordered by creation time.
func (r *SQLRepository) List(ctx context.Context) ([]*Pin, error) {
	query := `SELECT ` + pinColumns + ` FROM pins ORDER BY created_at_ns, id`
	return r.query(ctx, query)
}

// ListByUsername returns username's pins ordered by creation time.
func (r *SQLRepository) ListByUsername(ctx context.Context, username string) ([]*Pin, error) {
	query := r.db.Rebind(`SELECT ` + pinColumns + ` FROM pins WHERE username = ? ORDER BY created_at_ns, id`)
	return r.query(ctx, query, username)
}

func (r *SQLRepository) query(ctx context.Context, query string, args ...any) (_ []*Pin, err error) {
	ctx, end := tracing.StartDBSpan(ctx, r.db.System(), "pins", tracing.DBOperationQuery)
	defer func() { end(err) }()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pins: %w", err)
	}
	defer rows.Close()

	pins := make([]*Pin, 0)
	for rows.Next() {
		p, scanErr := scanPin(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan pin: %w", scanErr)
		}
		pins = append(pins, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pins: %w", err)
	}
	return pins, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPin(row rowScanner) (*Pin, error) {
	var (
		p         Pin
		createdNs int64
	)
	err := row.Scan(&p.ID, &p.Username, &p.Title, &p.Description, &p.Rating, &p.Lat, &p.Long, &p.Geohash, &createdNs)
	if err != nil {
		return nil, err
	}
	created := time.Unix(0, createdNs).UTC()
	p.CreatedAt = &created
	return &p, nil
}
