package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	billingapp "github.com/vetclinic/backend/internal/application/billing"
	"github.com/vetclinic/backend/internal/domain/billing"
	"github.com/vetclinic/backend/internal/domain/shared"
	"github.com/vetclinic/backend/internal/infrastructure/cache"
	"github.com/vetclinic/backend/internal/infrastructure/event"
	"github.com/vetclinic/backend/internal/infrastructure/migration"
	"github.com/vetclinic/backend/internal/infrastructure/persistence"
	"github.com/vetclinic/backend/internal/infrastructure/telemetry"
	"github.com/vetclinic/backend/internal/interfaces/http/handler"
	"github.com/vetclinic/backend/internal/interfaces/http/middleware"
	"github.com/vetclinic/backend/internal/interfaces/http/router"
	"github.com/vetclinic/backend/migrations"
	"github.com/vetclinic/backend/tests/testutil"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	code := m.Run()
	CleanupSharedContainer()
	os.Exit(code)
}

// billingStack is the billing service graph over one database
type billingStack struct {
	db          *TestDB
	clock       *testutil.Clock
	seed        *testutil.Seeder
	events      *testutil.RecordingHandler
	invoices    *billingapp.InvoiceService
	items       *billingapp.InvoiceItemService
	maintenance *billingapp.MaintenanceService
	engine      *gin.Engine
}

func newBillingStack(t *testing.T, db *TestDB) *billingStack {
	t.Helper()

	clock := testutil.NewClock(time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC))
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	itemRepo := persistence.NewGormInvoiceItemRepository(db.DB)
	sequence := persistence.NewGormInvoiceSequence(db.DB)
	catalog := persistence.NewGormCatalogLookup(db.DB)
	directory := persistence.NewGormDirectoryLookup(db.DB)
	settings := billingapp.DefaultSettings()

	bus := event.NewBus(zap.NewNop())
	codec := event.NewCodec()
	event.RegisterBillingEvents(codec)
	event.SubscribeBillingHandlers(bus, codec, telemetry.NewNoopBillingMetrics(),
		cache.NewMemoryIdempotencyStore(time.Minute), billingDedupConfig(), zap.NewNop())
	recorder := testutil.NewRecordingHandler()
	bus.Subscribe(recorder)
	require.NoError(t, bus.Start(context.Background()))

	s := &billingStack{
		db:          db,
		clock:       clock,
		seed:        testutil.NewSeeder(t, db.DB),
		events:      recorder,
		invoices:    billingapp.NewInvoiceService(invoiceRepo, itemRepo, catalog, sequence, directory, directory, settings),
		items:       billingapp.NewInvoiceItemService(invoiceRepo, itemRepo, catalog),
		maintenance: billingapp.NewMaintenanceService(invoiceRepo, itemRepo, catalog, sequence, settings),
	}
	s.invoices.SetClock(clock.Now)
	s.items.SetClock(clock.Now)
	s.maintenance.SetClock(clock.Now)
	s.invoices.SetEventPublisher(bus)
	s.items.SetEventPublisher(bus)
	s.maintenance.SetEventPublisher(bus)

	middleware.SetupValidator()
	s.engine = gin.New()
	s.engine.Use(middleware.RequestID())
	router.NewRouter(s.engine).Register(router.BillingRoutes(router.BillingHandlers{
		Invoices:    handler.NewInvoiceHandler(s.invoices),
		Items:       handler.NewInvoiceItemHandler(s.items),
		Maintenance: handler.NewMaintenanceHandler(s.maintenance),
	})...).Setup()
	return s
}

func (s *billingStack) createInvoice(t *testing.T, clientID uuid.UUID) *billingapp.InvoiceResponse {
	t.Helper()
	inv, err := s.invoices.Create(context.Background(), billingapp.CreateInvoiceRequest{ClientID: clientID})
	require.NoError(t, err)
	return inv
}

func (s *billingStack) addItem(t *testing.T, invoiceID uuid.UUID, name, price string, qty int, discount string) *billingapp.ItemMutationResponse {
	t.Helper()
	unit := decimal.RequireFromString(price)
	d := decimal.RequireFromString(discount)
	res, err := s.items.Create(context.Background(), billingapp.CreateInvoiceItemRequest{
		InvoiceID:       invoiceID,
		ItemType:        string(billing.ItemTypeService),
		ItemName:        name,
		UnitPrice:       &unit,
		Quantity:        qty,
		DiscountPercent: &d,
	})
	require.NoError(t, err)
	return res
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestInvoiceNumbering_Concurrent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := NewTestDB(t)
	stack := newBillingStack(t, db)
	clientID := stack.seed.Client("Concurrent Client")

	const workers = 25
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []string
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := stack.invoices.Create(context.Background(), billingapp.CreateInvoiceRequest{ClientID: clientID})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers = append(numbers, inv.InvoiceNumber)
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, numbers, workers)
	sort.Strings(numbers)
	for i, n := range numbers {
		assert.Equal(t, fmt.Sprintf("INV-002501%03d", i+1), n)
	}
	assert.Equal(t, workers, stack.events.CountByType(billing.EventTypeInvoiceCreated))
}

func TestInvoiceNumbering_MonthRolloverAndSeeding(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := NewTestDB(t)
	stack := newBillingStack(t, db)
	clientID := stack.seed.Client("Rollover Client")

	assert.Equal(t, "INV-002501001", stack.createInvoice(t, clientID).InvoiceNumber)
	assert.Equal(t, "INV-002501002", stack.createInvoice(t, clientID).InvoiceNumber)

	stack.clock.Set(time.Date(2025, time.February, 1, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, "INV-002502001", stack.createInvoice(t, clientID).InvoiceNumber)

	// A counter row lost after a restore is seeded from the stored numbers
	require.NoError(t, db.DB.Exec(`DELETE FROM invoice_sequences WHERE year_month = '2501'`).Error)
	stack.clock.Set(time.Date(2025, time.January, 20, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, "INV-002501003", stack.createInvoice(t, clientID).InvoiceNumber)
}

func TestRecalculation_ConcurrentItemWrites(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := NewTestDB(t)
	stack := newBillingStack(t, db)
	clientID := stack.seed.Client("Busy Client")
	inv := stack.createInvoice(t, clientID)

	const workers = 20
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unit := dec("10.00")
			d := decimal.Zero
			_, err := stack.items.Create(context.Background(), billingapp.CreateInvoiceItemRequest{
				InvoiceID:       inv.ID,
				ItemType:        string(billing.ItemTypeProduct),
				ItemName:        fmt.Sprintf("Vaccine dose %d", i),
				UnitPrice:       &unit,
				Quantity:        1,
				DiscountPercent: &d,
			})
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	stored, err := stack.invoices.GetByID(context.Background(), inv.ID, false)
	require.NoError(t, err)
	assert.True(t, dec("200.00").Equal(stored.Subtotal), "subtotal %s", stored.Subtotal)
	assert.True(t, dec("200.00").Equal(stored.Total), "total %s", stored.Total)

	forced, err := stack.invoices.ForceRecalculate(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.False(t, forced.Changed)
	assert.Equal(t, workers, forced.ItemCount)
}

func TestItemLifecycle_TotalsFollowItems(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := NewTestDB(t)
	stack := newBillingStack(t, db)
	clientID := stack.seed.Client("Lifecycle Client")
	inv := stack.createInvoice(t, clientID)

	res := stack.addItem(t, inv.ID, "Consultation", "100.00", 2, "10")
	assert.True(t, dec("180.00").Equal(res.Item.NetPrice))
	assert.True(t, dec("180.00").Equal(res.InvoiceTotals.Total))

	five := dec("5")
	_, err := stack.invoices.Update(context.Background(), inv.ID, billingapp.UpdateInvoiceRequest{DiscountPercent: &five})
	require.NoError(t, err)
	updated, err := stack.invoices.GetByID(context.Background(), inv.ID, false)
	require.NoError(t, err)
	assert.True(t, dec("9.00").Equal(updated.DiscountAmount))
	assert.True(t, dec("171.00").Equal(updated.Total))

	deleted, err := stack.items.Delete(context.Background(), res.Item.ID)
	require.NoError(t, err)
	assert.True(t, deleted.InvoiceTotals.Subtotal.IsZero())
	assert.True(t, deleted.InvoiceTotals.DiscountAmount.IsZero())
	assert.True(t, deleted.InvoiceTotals.Total.IsZero())
	assert.Positive(t, stack.events.CountByType(billing.EventTypeInvoiceTotalsRecalculated))
}

func TestLegacyReferences_NormalizedByMigration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := NewTestDB(t)
	stack := newBillingStack(t, db)
	clientID := stack.seed.Client("Legacy Client")
	inv := stack.createInvoice(t, clientID)
	stack.addItem(t, inv.ID, "Consultation", "50.00", 1, "0")

	legacyID := uuid.New()
	require.NoError(t, db.DB.Exec(`
		INSERT INTO invoice_items (id, invoice_id, legacy_invoice_ref, item_type, item_name,
			unit_price, quantity, discount_percent, net_price, snapshot_status)
		VALUES (?, NULL, ?, 'product', 'Imported flea collar', 25.00, 1, 0, 25.00, 'not_applicable')
	`, legacyID, " "+inv.ID.String()+" ").Error)

	// Both encodings count toward the totals
	forced, err := stack.invoices.ForceRecalculate(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.True(t, dec("75.00").Equal(forced.After.Total), "total %s", forced.After.Total)
	assert.Equal(t, 2, forced.ItemCount)

	// Re-running the normalization migration leaves nothing to rewrite
	m, err := migration.New(db.SqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Steps(-1))
	require.NoError(t, m.Steps(1))
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	var remaining int64
	require.NoError(t, db.DB.Raw(`SELECT COUNT(*) FROM invoice_items WHERE legacy_invoice_ref IS NOT NULL`).Scan(&remaining).Error)
	assert.Zero(t, remaining)
}

func TestLegacyReferences_NormalizedByMaintenance(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := NewTestDB(t)
	stack := newBillingStack(t, db)
	clientID := stack.seed.Client("Legacy Client")
	inv := stack.createInvoice(t, clientID)

	require.NoError(t, db.DB.Exec(`
		INSERT INTO invoice_items (id, invoice_id, legacy_invoice_ref, item_type, item_name,
			unit_price, quantity, discount_percent, net_price, snapshot_status)
		VALUES (?, NULL, ?, 'service', 'Imported checkup', 40.00, 1, 0, 40.00, 'not_applicable')
	`, uuid.New(), inv.ID.String()).Error)

	diag, err := stack.maintenance.Diagnose(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), diag.LegacyReferences)

	res, err := stack.maintenance.NormalizeAllReferences(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Normalized)
	assert.Zero(t, res.Remaining)
}

func TestBillingAPI_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := NewSharedTestDB(t)
	t.Cleanup(db.CleanTables)
	stack := newBillingStack(t, db)
	api := testutil.NewAPIClient(t, stack.engine)

	clientID := stack.seed.Client("API Client")
	serviceID := stack.seed.Service("Dental cleaning", "120.00")

	created := api.Do(http.MethodPost, "/api/v1/invoices", map[string]any{"client_id": clientID}).
		RequireStatus(t, http.StatusCreated)
	inv := testutil.DataAs[billingapp.InvoiceResponse](t, created)
	assert.Regexp(t, `^INV-00\d{7}$`, inv.InvoiceNumber)

	item := api.Do(http.MethodPost, "/api/v1/invoice-items", map[string]any{
		"invoice_id": inv.ID,
		"item_type":  "service",
		"item_name":  "Dental cleaning",
		"quantity":   1,
		"service_id": serviceID,
	}).RequireStatus(t, http.StatusCreated)
	mutation := testutil.DataAs[billingapp.ItemMutationResponse](t, item)
	require.NotNil(t, mutation.Item)
	assert.Equal(t, billing.SnapshotCaptured.String(), mutation.Item.SnapshotStatus)
	assert.True(t, dec("120.00").Equal(mutation.InvoiceTotals.Total))

	// Desync the stored totals; listing repairs them
	require.NoError(t, db.DB.Exec(`UPDATE invoices SET subtotal = 1, total = 1 WHERE id = ?`, inv.ID).Error)
	listed := api.Do(http.MethodGet, "/api/v1/invoices", nil).RequireStatus(t, http.StatusOK)
	page := testutil.DataAs[[]billingapp.InvoiceResponse](t, listed)
	require.Len(t, page, 1)
	assert.True(t, page[0].AutoFixed)
	assert.True(t, dec("120.00").Equal(page[0].Total))

	api.Do(http.MethodDelete, "/api/v1/invoices/"+inv.ID.String(), nil).RequireStatus(t, http.StatusOK)
	api.Do(http.MethodGet, "/api/v1/invoices/"+inv.ID.String(), nil).RequireError(t, http.StatusNotFound, "ERR_NOT_FOUND")
	api.Do(http.MethodPost, "/api/v1/invoice-items", map[string]any{
		"invoice_id": inv.ID,
		"item_type":  "service",
		"item_name":  "Late add",
		"quantity":   1,
		"unit_price": "10.00",
	}).RequireError(t, http.StatusUnprocessableEntity, "ERR_INVALID_STATE")
}

func billingDedupConfig() shared.IdempotencyConfig {
	cfg := shared.DefaultIdempotencyConfig()
	cfg.TTL = time.Hour
	return cfg
}
