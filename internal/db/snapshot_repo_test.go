package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"resilience/internal/types"
)

var snapshotColumnNames = []string{
	"id", "project_id", "rainfall_mm", "wind_speed_ms", "temperature_c",
	"humidity_pct", "cloudiness_pct", "earthquake_count", "flood_risk_index", "source",
	"seismic_available", "latitude", "longitude", "fetched_at", "created_at",
}

func TestSnapshotRepository_Create(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	fetched := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	created := fetched.Add(time.Second)
	s := &types.EnvironmentalSnapshot{
		ProjectID:        "proj-1",
		RainfallMM:       12.5,
		WindSpeedMS:      4,
		EarthquakeCount:  2,
		FloodRiskIndex:   20,
		Source:           types.WeatherSourceOpenWeather,
		SeismicAvailable: true,
		Location:         types.Location{Lat: 51.5, Lng: -0.12},
		FetchedAt:        fetched,
	}

	pool.ExpectQuery("INSERT INTO environmental_snapshots").
		WithArgs(pgxmock.AnyArg(), "proj-1", 12.5, 4.0, 0.0, 0.0, 0.0, 2, 20.0,
			types.WeatherSourceOpenWeather, true, 51.5, -0.12, fetched).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))

	require.NoError(t, NewSnapshotRepository(pool).Create(context.Background(), s))
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, created, s.CreatedAt)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestSnapshotRepository_FindLatest(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	pool.ExpectQuery("SELECT .+ FROM environmental_snapshots\\s+WHERE project_id = \\$1\\s+ORDER BY created_at DESC\\s+LIMIT 1").
		WithArgs("proj-1").
		WillReturnRows(pgxmock.NewRows(snapshotColumnNames).
			AddRow("snap-1", "proj-1", 25.0, 10.0, 18.0, 80.0, 90.0, 5, 30.0,
				types.WeatherSourceOpenMeteo, true, 51.5, -0.12, ts, ts))

	s, err := NewSnapshotRepository(pool).FindLatest(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "snap-1", s.ID)
	assert.Equal(t, 25.0, s.RainfallMM)
	assert.Equal(t, 5, s.EarthquakeCount)
	assert.Equal(t, types.Location{Lat: 51.5, Lng: -0.12}, s.Location)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestSnapshotRepository_FindLatest_NotFound(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	pool.ExpectQuery("SELECT .+ FROM environmental_snapshots").
		WithArgs("proj-1").
		WillReturnError(pgx.ErrNoRows)

	_, err = NewSnapshotRepository(pool).FindLatest(context.Background(), "proj-1")
	assert.True(t, types.IsCode(err, types.ErrCodeNotFoundSnapshot))
}

func TestSnapshotRepository_FindLatest_DBError(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	pool.ExpectQuery("SELECT .+ FROM environmental_snapshots").
		WithArgs("proj-1").
		WillReturnError(errors.New("connection reset"))

	_, err = NewSnapshotRepository(pool).FindLatest(context.Background(), "proj-1")
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}

func TestSnapshotRepository_History(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	pool.ExpectQuery("SELECT count").
		WithArgs("proj-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(23))
	pool.ExpectQuery("LIMIT \\$2 OFFSET \\$3").
		WithArgs("proj-1", 10, 20).
		WillReturnRows(pgxmock.NewRows(snapshotColumnNames).
			AddRow("snap-21", "proj-1", 1.0, 2.0, 3.0, 4.0, 5.0, 0, 5.0,
				types.WeatherSourceOpenWeather, false, 1.0, 2.0, ts, ts).
			AddRow("snap-22", "proj-1", 1.0, 2.0, 3.0, 4.0, 5.0, 1, 5.0,
				types.WeatherSourceOpenWeather, true, 1.0, 2.0, ts, ts))

	list, total, err := NewSnapshotRepository(pool).History(context.Background(), "proj-1",
		types.PageRequest{Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 23, total)
	require.Len(t, list, 2)
	assert.Equal(t, "snap-21", list[0].ID)
	assert.False(t, list[0].SeismicAvailable)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestSnapshotRepository_Delete(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	pool.ExpectExec("DELETE FROM environmental_snapshots").
		WithArgs("snap-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	pool.ExpectExec("DELETE FROM environmental_snapshots").
		WithArgs("snap-x").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := NewSnapshotRepository(pool)
	existed, err := repo.Delete(context.Background(), "snap-1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = repo.Delete(context.Background(), "snap-x")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestSnapshotRepository_LatestFetchTime(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("has snapshots", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"proj-1"}).
			Return(rowOf(&ts))

		got, err := NewSnapshotRepository(db).LatestFetchTime(context.Background(), "proj-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, ts, *got)
		db.AssertExpectations(t)
	})

	t.Run("no snapshots", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"proj-2"}).
			Return(rowOf(nil))

		got, err := NewSnapshotRepository(db).LatestFetchTime(context.Background(), "proj-2")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("db error", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(&mockRow{scanErr: errors.New("timeout")})

		_, err := NewSnapshotRepository(db).LatestFetchTime(context.Background(), "proj-3")
		assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
	})
}

func TestSnapshotRepository_PurgeBefore(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	cutoff := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	pool.ExpectExec("DELETE FROM environmental_snapshots\\s+WHERE id IN").
		WithArgs(cutoff, 500).
		WillReturnResult(pgxmock.NewResult("DELETE", 137))

	n, err := NewSnapshotRepository(pool).PurgeBefore(context.Background(), cutoff, 500)
	require.NoError(t, err)
	assert.Equal(t, 137, n)
	assert.NoError(t, pool.ExpectationsWereMet())
}
