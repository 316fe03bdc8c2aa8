package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-search/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresStoreFromDB(db), nil
}

func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate executes every .sql file of migrations in lexical order.
func (p *PostgresStore) Migrate(ctx context.Context, migrations fs.FS) ([]string, error) {
	names, err := fs.Glob(migrations, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := fs.ReadFile(migrations, name)
		if err != nil {
			return nil, err
		}
		if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
			return nil, fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return names, nil
}

func (p *PostgresStore) Save(ctx context.Context, l *models.RideListing) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO ride_listings(id, origin, destination, depart_at, seats_available, price, driver_rating, status, created_at)
VALUES($1,$2,$3,$4,$5,$6,$7,'open',$8)
ON CONFLICT (id) DO UPDATE SET origin=EXCLUDED.origin, destination=EXCLUDED.destination, depart_at=EXCLUDED.depart_at,
seats_available=EXCLUDED.seats_available, price=EXCLUDED.price, driver_rating=EXCLUDED.driver_rating`,
		l.ID, l.Origin, l.Destination, l.DepartureTime.UTC(), l.AvailableSeats, l.Price, nullFloat(l.DriverRating), time.Now().UTC())
	return err
}

func (p *PostgresStore) Search(ctx context.Context, q models.ListingQuery) ([]models.RideListing, int, error) {
	where, args, err := listingFilter(q)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM ride_listings WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count listings: %w", err)
	}
	if total == 0 || q.Offset >= total {
		return []models.RideListing{}, total, nil
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT id, origin, destination, depart_at, seats_available, price, driver_rating FROM ride_listings WHERE %s ORDER BY depart_at, id LIMIT $%d OFFSET $%d`,
		where, n+1, n+2)
	rows, err := p.db.QueryContext(ctx, query, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	out := make([]models.RideListing, 0, q.Limit)
	for rows.Next() {
		var (
			l      models.RideListing
			rating sql.NullFloat64
		)
		if err := rows.Scan(&l.ID, &l.Origin, &l.Destination, &l.DepartureTime, &l.AvailableSeats, &l.Price, &rating); err != nil {
			return nil, 0, err
		}
		if rating.Valid {
			r := rating.Float64
			l.DriverRating = &r
		}
		l.DepartureTime = l.DepartureTime.UTC()
		out = append(out, l)
	}
	return out, total, rows.Err()
}

// listingFilter builds the WHERE clause shared by the count and page queries.
func listingFilter(q models.ListingQuery) (string, []any, error) {
	clauses := []string{"status = 'open'"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Origin != "" {
		clauses = append(clauses, "origin ILIKE "+arg(likePattern(q.Origin))+` ESCAPE '\'`)
	}
	if q.Destination != "" {
		clauses = append(clauses, "destination ILIKE "+arg(likePattern(q.Destination))+` ESCAPE '\'`)
	}
	if q.Date != "" {
		day, err := time.Parse(models.DateLayout, q.Date)
		if err != nil {
			return "", nil, fmt.Errorf("invalid date %q: %w", q.Date, err)
		}
		clauses = append(clauses, "depart_at >= "+arg(day), "depart_at < "+arg(day.AddDate(0, 0, 1)))
	}
	clauses = append(clauses, "seats_available >= "+arg(q.MinSeats))
	if q.MaxPrice != nil {
		clauses = append(clauses, "price <= "+arg(*q.MaxPrice))
	}
	return strings.Join(clauses, " AND "), args, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
