package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pricewatch/internal/tracker"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, "", nil)
	require.NoError(t, err)
	return store, mock
}

func TestLoadScansRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT url, title, price, last_check_time FROM prices").
		WillReturnRows(pgxmock.NewRows([]string{"url", "title", "price", "last_check_time"}).
			AddRow("https://a", "A", 19.99, at).
			AddRow("https://b", "", 3.5, at))

	state, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, state.Len())
	entry, found := state.Lookup("HTTPS://A")
	require.True(t, found)
	require.Equal(t, 19.99, entry.Price)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveIsTransactional(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	state := tracker.NewState()
	state.Upsert(tracker.Entry{URL: "https://A", Title: "A", Price: 19.99, CheckedAt: at})

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM prices").WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("INSERT INTO prices").
		WithArgs("https://a", "https://A", "A", 19.99, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.Save(context.Background(), state))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	state := tracker.NewState()
	state.Upsert(tracker.Entry{URL: "https://a", Price: 1, CheckedAt: time.Unix(0, 0).UTC()})

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM prices").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO prices").
		WithArgs("https://a", "https://a", "", 1.0, time.Unix(0, 0).UTC()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Save(context.Background(), state)
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, tracker.ReasonStoreUnwritable, tracker.ReasonOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateAndQueryErrors(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS prices").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, store.Migrate(context.Background()))

	mock.ExpectQuery("SELECT url").WillReturnError(errors.New("connection reset"))
	_, err := store.Load(context.Background())
	require.Equal(t, tracker.KindPersistence, tracker.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "", nil)
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewWithPool(mock, "bad-name", nil)
	require.Error(t, err)
}
