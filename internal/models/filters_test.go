package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithResetsPage(t *testing.T) {
	f := DefaultFilters()
	f.Page = 4

	got, err := f.With(FieldOrigin, "Waterloo")
	require.NoError(t, err)
	assert.Equal(t, "Waterloo", got.Origin)
	assert.Equal(t, 1, got.Page)
	assert.Equal(t, 4, f.Page, "receiver must not change")

	got, err = f.With(FieldPage, "3")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Page)
}

func TestWithCoercion(t *testing.T) {
	tests := []struct {
		name    string
		field   Field
		value   string
		check   func(t *testing.T, f SearchFilters)
		wantErr bool
	}{
		{name: "seats floor", field: FieldSeats, value: "2.7", check: func(t *testing.T, f SearchFilters) { assert.Equal(t, 2, f.Seats) }},
		{name: "seats zero becomes one", field: FieldSeats, value: "0", check: func(t *testing.T, f SearchFilters) { assert.Equal(t, 1, f.Seats) }},
		{name: "seats negative becomes one", field: FieldSeats, value: "-3", check: func(t *testing.T, f SearchFilters) { assert.Equal(t, 1, f.Seats) }},
		{name: "seats garbage", field: FieldSeats, value: "many", wantErr: true},
		{name: "seats huge", field: FieldSeats, value: "1e20", wantErr: true},
		{name: "seats past int64", field: FieldSeats, value: "9223372036854775808", wantErr: true},
		{name: "seats 1e300", field: FieldSeats, value: "1e300", wantErr: true},
		{name: "seats very negative", field: FieldSeats, value: "-1e300", check: func(t *testing.T, f SearchFilters) { assert.Equal(t, 1, f.Seats) }},
		{name: "max price set", field: FieldMaxPrice, value: "12.5", check: func(t *testing.T, f SearchFilters) {
			require.NotNil(t, f.MaxPrice)
			assert.Equal(t, 12.5, *f.MaxPrice)
		}},
		{name: "max price cleared", field: FieldMaxPrice, value: "", check: func(t *testing.T, f SearchFilters) { assert.Nil(t, f.MaxPrice) }},
		{name: "max price negative", field: FieldMaxPrice, value: "-1", wantErr: true},
		{name: "max price nan", field: FieldMaxPrice, value: "NaN", wantErr: true},
		{name: "date ok", field: FieldDate, value: "2025-03-14", check: func(t *testing.T, f SearchFilters) { assert.Equal(t, "2025-03-14", f.Date) }},
		{name: "date empty", field: FieldDate, value: "", check: func(t *testing.T, f SearchFilters) { assert.Equal(t, "", f.Date) }},
		{name: "date invalid", field: FieldDate, value: "2025-02-30", wantErr: true},
		{name: "page below one", field: FieldPage, value: "0", check: func(t *testing.T, f SearchFilters) { assert.Equal(t, 1, f.Page) }},
		{name: "unknown field", field: Field("color"), value: "red", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultFilters().With(tt.field, tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}

func TestValuesOmitsEmptyFields(t *testing.T) {
	q := DefaultFilters().Values()
	assert.Equal(t, "page=1&seats=1", q.Encode())

	price := 20.0
	f := SearchFilters{Origin: " A ", Destination: "B", Date: "2025-01-02", Seats: 2, MaxPrice: &price, Page: 3}
	assert.Equal(t, "date=2025-01-02&destination=B&max_price=20&origin=A&page=3&seats=2", f.Values().Encode())
}

func TestParseSearchQueryRoundTrip(t *testing.T) {
	price := 9.5
	in := SearchFilters{Origin: "Waterloo", Destination: "Kitchener", Seats: 3, MaxPrice: &price, Page: 2}

	out, err := ParseSearchQuery(in.Values())
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = ParseSearchQuery(map[string][]string{"seats": {"x"}})
	require.Error(t, err)
}

func TestParseField(t *testing.T) {
	f, err := ParseField("maxPrice")
	require.NoError(t, err)
	assert.Equal(t, FieldMaxPrice, f)

	_, err = ParseField("nope")
	require.Error(t, err)
}

func TestListingValidate(t *testing.T) {
	rating := 6.0
	l := RideListing{Origin: "A", Destination: "B", DepartureTime: time.Now(), AvailableSeats: 2, Price: 10}
	require.NoError(t, l.Validate())

	l.DriverRating = &rating
	require.Error(t, l.Validate())

	l.DriverRating = nil
	l.Price = -1
	require.Error(t, l.Validate())
}

func TestRouteKey(t *testing.T) {
	e := SearchEvent{Origin: " Waterloo", Destination: "KITCHENER "}
	assert.Equal(t, "waterloo|kitchener", e.RouteKey())
}
