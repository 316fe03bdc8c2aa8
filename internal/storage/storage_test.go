package storage

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-search/internal/models"
)

func listing(id, from, to string, at time.Time, seats int, price float64) models.RideListing {
	return models.RideListing{ID: id, Origin: from, Destination: to, DepartureTime: at, AvailableSeats: seats, Price: price}
}

func TestMemoryStoreSearch(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(
		listing("b", "Waterloo", "Toronto", day.Add(9*time.Hour), 2, 20),
		listing("a", "Waterloo", "Toronto", day.Add(9*time.Hour), 3, 15),
		listing("c", "waterloo uni", "Guelph", day.Add(7*time.Hour), 1, 9),
		listing("d", "Waterloo", "Toronto", day.Add(33*time.Hour), 4, 12),
		listing("e", "Kitchener", "Toronto", day.Add(8*time.Hour), 4, 12),
	)
	ctx := context.Background()

	got, total, err := store.Search(ctx, models.ListingQuery{Origin: "WATERLOO", MinSeats: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"c", "a", "b", "d"}, ids(got))

	got, total, err = store.Search(ctx, models.ListingQuery{Origin: "waterloo", Date: "2025-06-01", MinSeats: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"a", "b"}, ids(got))

	maxPrice := 16.0
	got, total, err = store.Search(ctx, models.ListingQuery{Destination: "toronto", MaxPrice: &maxPrice, MinSeats: 1, Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"d"}, ids(got))

	got, total, err = store.Search(ctx, models.ListingQuery{MinSeats: 1, Limit: 10, Offset: 50})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestMemoryStoreSaveAndGet(t *testing.T) {
	store := NewMemoryStore()
	l := listing("x", "A", "B", time.Now(), 1, 5)
	require.NoError(t, store.Save(context.Background(), &l))

	got, err := store.Get("x")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Origin)

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStoreSearch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStoreFromDB(db)

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	maxPrice := 20.0
	q := models.ListingQuery{Origin: "water_loo", Date: "2025-06-01", MinSeats: 2, MaxPrice: &maxPrice, Limit: 10, Offset: 10}

	mock.ExpectQuery(`SELECT count\(\*\) FROM ride_listings WHERE status = 'open' AND origin ILIKE \$1 .* AND depart_at >= \$2 AND depart_at < \$3 AND seats_available >= \$4 AND price <= \$5`).
		WithArgs(`%water\_loo%`, day, day.AddDate(0, 0, 1), 2, 20.0).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery(`SELECT id, origin, destination, depart_at, seats_available, price, driver_rating FROM ride_listings WHERE .* ORDER BY depart_at, id LIMIT \$6 OFFSET \$7`).
		WithArgs(`%water\_loo%`, day, day.AddDate(0, 0, 1), 2, 20.0, 10, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "origin", "destination", "depart_at", "seats_available", "price", "driver_rating"}).
			AddRow("r11", "Water_loo", "Toronto", day.Add(18*time.Hour), 3, 14.5, nil))

	got, total, err := store.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, got, 1)
	assert.Equal(t, "r11", got[0].ID)
	assert.Equal(t, 14.5, got[0].Price)
	assert.Nil(t, got[0].DriverRating)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSearchSkipsPageQueryPastEnd(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM ride_listings WHERE status = 'open' AND seats_available >= \$1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	got, total, err := NewPostgresStoreFromDB(db).Search(context.Background(), models.ListingQuery{MinSeats: 1, Limit: 10, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSaveAndMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStoreFromDB(db)

	rating := 4.2
	l := listing("r1", "A", "B", time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), 2, 10)
	l.DriverRating = &rating

	mock.ExpectExec(`INSERT INTO ride_listings`).
		WithArgs("r1", "A", "B", l.DepartureTime, 2, 10.0, rating, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Save(context.Background(), &l))

	mock.ExpectExec(`CREATE TABLE one`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE two`).WillReturnResult(sqlmock.NewResult(0, 0))
	applied, err := store.Migrate(context.Background(), fstest.MapFS{
		"002_two.sql": {Data: []byte("CREATE TABLE two()")},
		"001_one.sql": {Data: []byte("CREATE TABLE one()")},
		"README.md":   {Data: []byte("ignored")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"001_one.sql", "002_two.sql"}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func ids(ls []models.RideListing) []string {
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.ID)
	}
	return out
}
