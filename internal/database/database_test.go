package database_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jobsturm/crm-local-sub000/internal/database"
	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func openStore(t *testing.T, root string, opts ...database.Option) *database.Store {
	t.Helper()
	opts = append([]database.Option{database.WithClock(func() time.Time { return fixedNow })}, opts...)
	store, err := database.Open(root, zap.NewNop(), opts...)
	require.NoError(t, err)
	return store
}

func writeRaw(t *testing.T, root string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, database.FileName), data, 0o644))
}

func readRaw(t *testing.T, root string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, database.FileName))
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	return raw
}

// legacyDatabase is a 1.0.0 file: flat numbering fields and flat customer
// address fields, no version key
func legacyDatabase() map[string]any {
	return map[string]any{
		"customers": []any{
			map[string]any{
				"id":         "c1",
				"name":       "Acme",
				"street":     "Main 1",
				"city":       "Utrecht",
				"postalCode": "3511AA",
			},
		},
		"business": map[string]any{"name": "My Shop", "address": "Canal 9"},
		"settings": map[string]any{
			"offerPrefix":       "OF",
			"nextOfferNumber":   float64(7),
			"invoicePrefix":     "FA",
			"nextInvoiceNumber": float64(12),
		},
	}
}

// ============================================================================
// Open Tests
// ============================================================================

func TestOpen_CreatesDefaultDatabase(t *testing.T) {
	root := t.TempDir()

	store := openStore(t, root)

	db := store.Snapshot()
	assert.Equal(t, database.CurrentVersion, db.Version)
	assert.Empty(t, db.Customers)
	assert.Nil(t, db.Business)
	assert.Equal(t, "OFF", db.Settings.Numbering.Offer.Prefix)
	assert.Equal(t, 1, db.Settings.Numbering.Invoice.NextNumber)
	assert.Equal(t, 1, db.Settings.FiscalYearStartMonth)

	raw := readRaw(t, root)
	assert.Equal(t, database.CurrentVersion, raw["version"])
	assert.Equal(t, []any{}, raw["customers"])
}

func TestOpen_MigratesLegacyFile(t *testing.T) {
	root := t.TempDir()
	writeRaw(t, root, legacyDatabase())

	store := openStore(t, root)
	db := store.Snapshot()

	assert.Equal(t, database.CurrentVersion, db.Version)
	require.Len(t, db.Customers, 1)
	assert.Equal(t, domain.Address{Street: "Main 1", City: "Utrecht", PostalCode: "3511AA"}, db.Customers[0].Address)
	require.NotNil(t, db.Business)
	assert.Equal(t, "Canal 9", db.Business.Address.Street)

	assert.Equal(t, "OF", db.Settings.Numbering.Offer.Prefix)
	assert.Equal(t, 7, db.Settings.Numbering.Offer.NextNumber)
	assert.Equal(t, "FA", db.Settings.Numbering.Invoice.Prefix)
	assert.Equal(t, 12, db.Settings.Numbering.Invoice.NextNumber)
	assert.Equal(t, "EUR", db.Settings.Currency)
	assert.Equal(t, 21.0, db.Settings.DefaultTaxRate)
	assert.Equal(t, "system", db.Settings.Theme)
	assert.Empty(t, db.Products)

	// The migrated file is persisted
	raw := readRaw(t, root)
	assert.Equal(t, database.CurrentVersion, raw["version"])
	settings := raw["settings"].(map[string]any)
	assert.NotContains(t, settings, "offerPrefix")
	assert.Contains(t, settings, "numbering")
}

func TestOpen_MigrationIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeRaw(t, root, legacyDatabase())

	first := openStore(t, root).Snapshot()
	before, err := os.ReadFile(filepath.Join(root, database.FileName))
	require.NoError(t, err)

	second := openStore(t, root).Snapshot()
	after, err := os.ReadFile(filepath.Join(root, database.FileName))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, string(before), string(after), "opening a current file must not rewrite it")
}

func TestOpen_RefusesNewerVersion(t *testing.T) {
	root := t.TempDir()
	writeRaw(t, root, map[string]any{"version": "9.0.0", "customers": []any{}})
	before, err := os.ReadFile(filepath.Join(root, database.FileName))
	require.NoError(t, err)

	_, err = database.Open(root, zap.NewNop())

	assert.ErrorIs(t, err, database.ErrVersionTooNew)
	after, err := os.ReadFile(filepath.Join(root, database.FileName))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestOpen_CorruptFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, database.FileName), []byte("{not json"), 0o644))

	_, err := database.Open(root, zap.NewNop())

	assert.ErrorIs(t, err, database.ErrCorruptDatabase)
}

func TestOpen_InvalidVersion(t *testing.T) {
	root := t.TempDir()
	writeRaw(t, root, map[string]any{"version": "banana"})

	_, err := database.Open(root, zap.NewNop())

	assert.ErrorIs(t, err, database.ErrMigrationFailed)
}

// ============================================================================
// Update Tests
// ============================================================================

func TestUpdate_PersistsAndStamps(t *testing.T) {
	root := t.TempDir()
	store := openStore(t, root)

	err := store.Update(func(db *domain.Database) error {
		db.Customers = append(db.Customers, domain.Customer{ID: "c1", Name: "Acme"})
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, store.Snapshot().Customers, 1)
	assert.Equal(t, fixedNow, store.Snapshot().UpdatedAt)

	reopened := openStore(t, root)
	assert.Equal(t, store.Snapshot(), reopened.Snapshot())
}

func TestUpdate_ConcurrentCallersAreSerialized(t *testing.T) {
	root := t.TempDir()
	store := openStore(t, root)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Update(func(db *domain.Database) error {
				db.Settings.Numbering.Invoice.NextNumber++
				return nil
			}))
		}()
	}
	wg.Wait()

	assert.Equal(t, n+1, store.Snapshot().Settings.Numbering.Invoice.NextNumber)
	assert.Equal(t, n+1, openStore(t, root).Snapshot().Settings.Numbering.Invoice.NextNumber)
}

func TestUpdate_MutatorErrorLeavesState(t *testing.T) {
	store := openStore(t, t.TempDir())
	boom := errors.New("boom")

	err := store.Update(func(db *domain.Database) error {
		db.Customers = append(db.Customers, domain.Customer{ID: "c1"})
		db.Settings.Numbering.Offer.YearCounters["2025"] = 5
		return boom
	})

	assert.ErrorIs(t, err, boom)
	db := store.Snapshot()
	assert.Empty(t, db.Customers)
	assert.Empty(t, db.Settings.Numbering.Offer.YearCounters)
}

func TestUpdate_WriteFailureLeavesStateAndFile(t *testing.T) {
	root := t.TempDir()
	openStore(t, root)
	before, err := os.ReadFile(filepath.Join(root, database.FileName))
	require.NoError(t, err)

	failing := storage.NewAtomicWriter(storage.WithRenameFunc(func(oldpath, newpath string) error {
		return errors.New("disk full")
	}))
	store := openStore(t, root, database.WithWriter(failing))

	err = store.Update(func(db *domain.Database) error {
		db.Customers = append(db.Customers, domain.Customer{ID: "c1"})
		return nil
	})

	assert.ErrorIs(t, err, storage.ErrWriteFailed)
	assert.Empty(t, store.Snapshot().Customers)
	after, err := os.ReadFile(filepath.Join(root, database.FileName))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	store := openStore(t, t.TempDir())

	snap := store.Snapshot()
	snap.Settings.Labels["x"] = "y"
	snap.Settings.Numbering.Invoice.YearCounters["2025"] = 3

	fresh := store.Snapshot()
	assert.Empty(t, fresh.Settings.Labels)
	assert.Empty(t, fresh.Settings.Numbering.Invoice.YearCounters)
}

func TestReload_PicksUpExternalChanges(t *testing.T) {
	root := t.TempDir()
	store := openStore(t, root)

	other := openStore(t, root)
	require.NoError(t, other.Update(func(db *domain.Database) error {
		db.Settings.Currency = "USD"
		return nil
	}))

	require.NoError(t, store.Reload())
	assert.Equal(t, "USD", store.Snapshot().Settings.Currency)
}

// ============================================================================
// Inspect Tests
// ============================================================================

func TestInspect(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		st, err := database.Inspect(t.TempDir())
		require.NoError(t, err)
		assert.False(t, st.Exists)
		assert.Equal(t, database.CurrentVersion, st.Current)
	})

	t.Run("legacy file is not rewritten", func(t *testing.T) {
		root := t.TempDir()
		writeRaw(t, root, legacyDatabase())

		st, err := database.Inspect(root)

		require.NoError(t, err)
		assert.True(t, st.Exists)
		assert.Equal(t, "1.0.0", st.Version)
		assert.Equal(t, []string{"1.1.0", "2.0.0", "2.1.0"}, st.Pending)
		assert.NotContains(t, readRaw(t, root), "version")
	})

	t.Run("too new", func(t *testing.T) {
		root := t.TempDir()
		writeRaw(t, root, map[string]any{"version": "3.0.0"})

		st, err := database.Inspect(root)

		require.NoError(t, err)
		assert.True(t, st.TooNew)
		assert.Empty(t, st.Pending)
	})
}
