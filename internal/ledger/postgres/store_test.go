package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/ledger"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	return store, mock
}

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "")
	assert.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "results; DROP TABLE x")
	assert.Error(t, err)

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	assert.Equal(t, "company_results", store.table)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS company_results").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	row := ledger.Result{
		CompanyName: "Apple Inc.",
		Ticker:      "AAPL",
		Link:        "https://storage.googleapis.com/b/AAPL/",
		Has10K:      true,
		Has10Q:      true,
		HasDeck:     true,
	}
	mock.ExpectExec("INSERT INTO company_results").
		WithArgs(row.CompanyName, row.Ticker, row.Link, true, true, true, false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Append(context.Background(), row))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	boom := errors.New("connection refused")
	mock.ExpectExec("INSERT INTO company_results").WillReturnError(boom)

	err := store.Append(context.Background(), ledger.Degraded("", "AAPL"))
	require.ErrorIs(t, err, boom)
}

func TestCompletedReadsTickers(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT DISTINCT ticker FROM company_results").
		WillReturnRows(pgxmock.NewRows([]string{"ticker"}).AddRow("aapl").AddRow("MSFT").AddRow(""))

	done, err := store.Completed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"AAPL": {}, "MSFT": {}}, done)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReset(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM company_results").WillReturnResult(pgxmock.NewResult("DELETE", 3))

	require.NoError(t, store.Reset(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
