package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	billingapp "github.com/vetclinic/backend/internal/application/billing"
	"github.com/vetclinic/backend/internal/domain/billing"
	"github.com/vetclinic/backend/internal/infrastructure/persistence"
	"github.com/vetclinic/backend/internal/infrastructure/persistence/models"
	"github.com/vetclinic/backend/internal/interfaces/http/dto"
	"github.com/vetclinic/backend/internal/interfaces/http/handler"
	"github.com/vetclinic/backend/internal/interfaces/http/middleware"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type billingAPI struct {
	t       *testing.T
	engine  *gin.Engine
	db      *gorm.DB
	now     time.Time
	service uuid.UUID
	client  uuid.UUID
}

func newBillingAPI(t *testing.T) *billingAPI {
	t.Helper()
	middleware.SetupValidator()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, persistence.AutoMigrateBilling(db))

	api := &billingAPI{
		t:   t,
		db:  db,
		now: time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return api.now }

	invoices := persistence.NewGormInvoiceRepository(db)
	items := persistence.NewGormInvoiceItemRepository(db)
	sequence := persistence.NewGormInvoiceSequence(db)
	catalog := persistence.NewGormCatalogLookup(db)
	directory := persistence.NewGormDirectoryLookup(db)
	settings := billingapp.DefaultSettings()

	invoiceService := billingapp.NewInvoiceService(invoices, items, catalog, sequence, directory, directory, settings)
	invoiceService.SetClock(clock)
	itemService := billingapp.NewInvoiceItemService(invoices, items, catalog)
	itemService.SetClock(clock)
	maintenanceService := billingapp.NewMaintenanceService(invoices, items, catalog, sequence, settings)
	maintenanceService.SetClock(clock)

	api.engine = gin.New()
	api.engine.Use(middleware.RequestID())
	NewRouter(api.engine).Register(BillingRoutes(BillingHandlers{
		Invoices:    handler.NewInvoiceHandler(invoiceService),
		Items:       handler.NewInvoiceItemHandler(itemService),
		Maintenance: handler.NewMaintenanceHandler(maintenanceService),
	})...).Setup()

	api.client = api.seedClient("Maria Lopez")
	api.service = api.seedService("Consultation", "100.00")
	return api
}

func (a *billingAPI) seedClient(name string) uuid.UUID {
	now := time.Now().UTC()
	row := models.ClientModel{
		BaseModel:   models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Name:        name,
		Gender:      "F",
		PhoneNumber: uuid.NewString()[:12],
		Status:      true,
	}
	require.NoError(a.t, a.db.Create(&row).Error)
	return row.ID
}

func (a *billingAPI) seedService(name, price string) uuid.UUID {
	now := time.Now().UTC()
	row := models.ServiceModel{
		BaseModel:   models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Name:        name,
		Price:       decimal.RequireFromString(price),
		Duration:    30,
		ServiceType: "clinical",
		Status:      true,
	}
	require.NoError(a.t, a.db.Create(&row).Error)
	return row.ID
}

func (a *billingAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, "/api/v1"+path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

// decode unwraps the success envelope into out
func decode(t *testing.T, w *httptest.ResponseRecorder, out any) dto.Response {
	t.Helper()
	var envelope struct {
		dto.Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope), w.Body.String())
	if out != nil && len(envelope.Data) > 0 {
		require.NoError(t, json.Unmarshal(envelope.Data, out))
	}
	return envelope.Response
}

func (a *billingAPI) createInvoice(discount string) billingapp.InvoiceResponse {
	a.t.Helper()
	w := a.do(http.MethodPost, "/invoices", map[string]any{
		"client_id":        a.client,
		"discount_percent": discount,
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	var inv billingapp.InvoiceResponse
	decode(a.t, w, &inv)
	return inv
}

func (a *billingAPI) createItem(invoiceID uuid.UUID, body map[string]any) billingapp.ItemMutationResponse {
	a.t.Helper()
	body["invoice_id"] = invoiceID
	w := a.do(http.MethodPost, "/invoice-items", body)
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	var res billingapp.ItemMutationResponse
	decode(a.t, w, &res)
	return res
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestBillingAPI_InvoiceNumbering(t *testing.T) {
	api := newBillingAPI(t)

	first := api.createInvoice("0")
	second := api.createInvoice("0")
	assert.Equal(t, "INV-002501001", first.InvoiceNumber)
	assert.Equal(t, "INV-002501002", second.InvoiceNumber)

	api.now = time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	third := api.createInvoice("0")
	assert.Equal(t, "INV-002502001", third.InvoiceNumber)
}

func TestBillingAPI_ItemLifecycleRecalculatesTotals(t *testing.T) {
	api := newBillingAPI(t)
	inv := api.createInvoice("5")

	// item net price and invoice totals
	created := api.createItem(inv.ID, map[string]any{
		"item_type":        "service",
		"item_name":        "Consultation",
		"unit_price":       "100.00",
		"quantity":         2,
		"discount_percent": "10",
	})
	require.NotNil(t, created.Item)
	assertDecimal(t, "180.00", created.Item.NetPrice)
	assertDecimal(t, "180.00", created.InvoiceTotals.Subtotal)
	assertDecimal(t, "9.00", created.InvoiceTotals.DiscountAmount)
	assertDecimal(t, "171.00", created.InvoiceTotals.Total)

	w := api.do(http.MethodPut, "/invoice-items/"+created.Item.ID.String(), map[string]any{"quantity": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated billingapp.ItemMutationResponse
	decode(t, w, &updated)
	assertDecimal(t, "90.00", updated.Item.NetPrice)
	assertDecimal(t, "85.50", updated.InvoiceTotals.Total)

	// deleting the only item zeroes the invoice
	w = api.do(http.MethodDelete, "/invoice-items/"+created.Item.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var deleted billingapp.ItemMutationResponse
	decode(t, w, &deleted)
	assert.Nil(t, deleted.Item)
	assertDecimal(t, "0", deleted.InvoiceTotals.Subtotal)
	assertDecimal(t, "0", deleted.InvoiceTotals.DiscountAmount)
	assertDecimal(t, "0", deleted.InvoiceTotals.Total)

	w = api.do(http.MethodGet, "/invoice-items/"+created.Item.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBillingAPI_CreateInvoiceWithItems(t *testing.T) {
	api := newBillingAPI(t)

	w := api.do(http.MethodPost, "/invoices", map[string]any{
		"client_id": api.client,
		"items": []map[string]any{{
			"item_type":        "service",
			"item_name":        "Consultation",
			"unit_price":       "100.00",
			"quantity":         2,
			"discount_percent": "10",
			"service_id":       api.service,
		}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var inv billingapp.InvoiceResponse
	decode(t, w, &inv)
	assertDecimal(t, "180.00", inv.Subtotal)
	assertDecimal(t, "180.00", inv.Total)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "captured", inv.Items[0].SnapshotStatus)

	w = api.do(http.MethodGet, "/invoice-items?invoice_id="+inv.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var items []billingapp.InvoiceItemResponse
	decode(t, w, &items)
	require.Len(t, items, 1)
	assertDecimal(t, "180.00", items[0].NetPrice)

	t.Run("stored totals match a forced recalculation", func(t *testing.T) {
		w := api.do(http.MethodPost, "/invoices/"+inv.ID.String()+"/force-recalculate", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var res billingapp.RecalculationResponse
		decode(t, w, &res)
		assert.False(t, res.Changed)
	})

	t.Run("invalid item rejects the whole invoice", func(t *testing.T) {
		w := api.do(http.MethodPost, "/invoices", map[string]any{
			"client_id": api.client,
			"items": []map[string]any{{
				"item_type": "bundle", "item_name": "X", "unit_price": "10", "quantity": 1,
			}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		next := api.createInvoice("0")
		assert.Equal(t, "INV-002501002", next.InvoiceNumber)
	})
}

func TestBillingAPI_RejectsSubCentAmounts(t *testing.T) {
	api := newBillingAPI(t)
	inv := api.createInvoice("0")

	w := api.do(http.MethodPost, "/invoice-items", map[string]any{
		"invoice_id": inv.ID, "item_type": "product", "item_name": "Dewormer",
		"unit_price": "0.333", "quantity": 3,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	resp := decode(t, w, nil)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)

	w = api.do(http.MethodPut, "/invoices/"+inv.ID.String(), map[string]any{"discount_percent": "7.125"})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	created := api.createItem(inv.ID, map[string]any{
		"item_type": "product", "item_name": "Dewormer", "unit_price": "0.33", "quantity": 3,
	})
	assertDecimal(t, "0.99", created.Item.NetPrice)
	assertDecimal(t, "0.99", created.InvoiceTotals.Total)
}

func TestBillingAPI_SnapshotCapture(t *testing.T) {
	api := newBillingAPI(t)
	inv := api.createInvoice("0")

	t.Run("zero price is filled from the catalog", func(t *testing.T) {
		res := api.createItem(inv.ID, map[string]any{
			"item_type":  "service",
			"item_name":  "Consultation",
			"quantity":   1,
			"service_id": api.service,
		})
		assert.Equal(t, billing.SnapshotCaptured.String(), res.Item.SnapshotStatus)
		require.NotNil(t, res.Item.OriginalServiceData)
		assertDecimal(t, "100.00", res.Item.UnitPrice)

		// later catalog changes do not reach the frozen snapshot
		require.NoError(t, api.db.Model(&models.ServiceModel{}).
			Where("id = ?", api.service).
			Update("price", decimal.RequireFromString("150.00")).Error)

		w := api.do(http.MethodGet, "/invoice-items/"+res.Item.ID.String()+"?include=service", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var item billingapp.InvoiceItemResponse
		decode(t, w, &item)
		assertDecimal(t, "100.00", item.UnitPrice)
		require.NotNil(t, item.Service)
		assertDecimal(t, "150.00", item.Service.Price)
	})

	t.Run("unknown catalog id still creates the item", func(t *testing.T) {
		res := api.createItem(inv.ID, map[string]any{
			"item_type":  "service",
			"item_name":  "Ghost service",
			"unit_price": "12.00",
			"quantity":   1,
			"service_id": uuid.New(),
		})
		assert.Equal(t, billing.SnapshotMissing.String(), res.Item.SnapshotStatus)
		assert.Nil(t, res.Item.OriginalServiceData)
	})
}

func TestBillingAPI_LegacyReferencesAreSummedAndNormalized(t *testing.T) {
	api := newBillingAPI(t)
	inv := api.createInvoice("0")
	api.createItem(inv.ID, map[string]any{
		"item_type": "product", "item_name": "Collar", "unit_price": "10.00", "quantity": 1,
	})

	ref := inv.ID.String()
	now := time.Now().UTC()
	legacy := models.InvoiceItemModel{
		BaseModel:        models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		LegacyInvoiceRef: &ref,
		ItemType:         billing.ItemTypeProduct,
		ItemName:         "Vaccine",
		UnitPrice:        decimal.RequireFromString("5.00"),
		Quantity:         2,
		DiscountPercent:  decimal.Zero,
		NetPrice:         decimal.RequireFromString("10.00"),
		SnapshotStatus:   billing.SnapshotNotApplicable,
	}
	require.NoError(t, api.db.Create(&legacy).Error)

	w := api.do(http.MethodGet, "/invoices/"+inv.ID.String()+"/debug", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var diagnosis billingapp.DiagnosisResponse
	decode(t, w, &diagnosis)
	assert.Equal(t, int64(1), diagnosis.LegacyReferences)
	assert.True(t, diagnosis.Diverges)

	w = api.do(http.MethodPost, "/invoices/"+inv.ID.String()+"/force-recalculate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var recalc billingapp.RecalculationResponse
	decode(t, w, &recalc)
	assert.Equal(t, 2, recalc.ItemCount)
	assert.Equal(t, int64(1), recalc.NormalizedRefs)
	assertDecimal(t, "20.00", recalc.After.Total)

	var row models.InvoiceItemModel
	require.NoError(t, api.db.First(&row, "id = ?", legacy.ID).Error)
	require.NotNil(t, row.InvoiceID)
	assert.Equal(t, inv.ID, *row.InvoiceID)
	assert.Nil(t, row.LegacyInvoiceRef)
}

func TestBillingAPI_ListAutoFixAndPaging(t *testing.T) {
	api := newBillingAPI(t)
	inv := api.createInvoice("0")
	api.createItem(inv.ID, map[string]any{
		"item_type": "product", "item_name": "Food", "unit_price": "40.00", "quantity": 1,
	})
	for i := 0; i < 2; i++ {
		api.now = api.now.Add(time.Minute)
		api.createInvoice("0")
	}

	// corrupt the stored totals behind the service's back
	require.NoError(t, api.db.Model(&models.InvoiceModel{}).
		Where("id = ?", inv.ID).
		Updates(map[string]any{"subtotal": "1.00", "total": "1.00"}).Error)

	t.Run("repair disabled leaves stored totals", func(t *testing.T) {
		w := api.do(http.MethodGet, "/invoices?auto_fix=false&per_page=10", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var page []billingapp.InvoiceResponse
		decode(t, w, &page)
		for _, p := range page {
			if p.ID == inv.ID {
				assertDecimal(t, "1.00", p.Total)
				assert.False(t, p.AutoFixed)
			}
		}
	})

	t.Run("default list repairs diverging totals", func(t *testing.T) {
		w := api.do(http.MethodGet, "/invoices?per_page=2&page=1&sort_by=created_at&sort_order=asc&include=client", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var page []billingapp.InvoiceResponse
		resp := decode(t, w, &page)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, dto.Meta{CurrentPage: 1, PerPage: 2, Total: 3, LastPage: 2, From: 1, To: 2}, *resp.Meta)
		require.Len(t, page, 2)
		assert.Equal(t, inv.ID, page[0].ID)
		assert.True(t, page[0].AutoFixed)
		assertDecimal(t, "40.00", page[0].Total)
		require.NotNil(t, page[0].Client)
		assert.Equal(t, "Maria Lopez", page[0].Client.Name)
	})

	t.Run("search matches client name", func(t *testing.T) {
		w := api.do(http.MethodGet, "/invoices?search=lopez", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var page []billingapp.InvoiceResponse
		decode(t, w, &page)
		assert.Len(t, page, 3)
	})
}

func TestBillingAPI_SoftDeleteRestoreAndPay(t *testing.T) {
	api := newBillingAPI(t)
	inv := api.createInvoice("0")
	item := api.createItem(inv.ID, map[string]any{
		"item_type": "product", "item_name": "Shampoo", "unit_price": "8.00", "quantity": 1,
	})
	path := "/invoices/" + inv.ID.String()

	require.Equal(t, http.StatusOK, api.do(http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, path+"?include_deleted=true", nil).Code)

	// items are kept and readable, but frozen
	w := api.do(http.MethodGet, "/invoice-items?invoice_id="+inv.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []billingapp.InvoiceItemResponse
	decode(t, w, &items)
	require.Len(t, items, 1)
	assert.Equal(t, item.Item.ID, items[0].ID)

	w = api.do(http.MethodPut, "/invoice-items/"+item.Item.ID.String(), map[string]any{"quantity": 3})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, path+"/mark-paid", nil).Code)

	w = api.do(http.MethodPost, path+"/restore", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var restored billingapp.InvoiceResponse
	decode(t, w, &restored)
	assert.True(t, restored.Status)

	w = api.do(http.MethodPost, path+"/mark-paid", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var paid billingapp.InvoiceResponse
	decode(t, w, &paid)
	assert.Equal(t, "PAID", paid.PaymentStatus)
	require.NotNil(t, paid.PaidAt)

	w = api.do(http.MethodGet, "/invoices?payment_status=PAID", nil)
	var page []billingapp.InvoiceResponse
	decode(t, w, &page)
	require.Len(t, page, 1)
	assert.Equal(t, inv.ID, page[0].ID)
}

func TestBillingAPI_UpdateDiscountRecalculates(t *testing.T) {
	api := newBillingAPI(t)
	inv := api.createInvoice("0")
	api.createItem(inv.ID, map[string]any{
		"item_type": "product", "item_name": "Food", "unit_price": "180.00", "quantity": 1,
	})

	w := api.do(http.MethodPut, "/invoices/"+inv.ID.String(), map[string]any{"discount_percent": "5"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated billingapp.InvoiceResponse
	decode(t, w, &updated)
	assertDecimal(t, "9.00", updated.DiscountAmount)
	assertDecimal(t, "171.00", updated.Total)
}

func TestBillingAPI_Maintenance(t *testing.T) {
	api := newBillingAPI(t)
	inv := api.createInvoice("0")

	// an item stored without a price but with a catalog reference
	res := api.createItem(inv.ID, map[string]any{
		"item_type": "service", "item_name": "Consultation", "unit_price": "0", "quantity": 2,
	})
	require.NoError(t, api.db.Model(&models.InvoiceItemModel{}).
		Where("id = ?", res.Item.ID).
		Update("service_id", api.service).Error)

	w := api.do(http.MethodPost, "/invoices/"+inv.ID.String()+"/fix-item-prices", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var fixed billingapp.FixItemPricesResponse
	decode(t, w, &fixed)
	require.Len(t, fixed.Items, 1)
	assert.True(t, fixed.Items[0].Repriced)
	require.NotNil(t, fixed.Recalculation)
	assertDecimal(t, "200.00", fixed.Recalculation.After.Total)

	// an invoice imported without a number
	require.NoError(t, api.db.Model(&models.InvoiceModel{}).
		Where("id = ?", inv.ID).
		Update("invoice_number", "").Error)

	w = api.do(http.MethodGet, "/invoices/maintenance/overview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var counts billing.InvoiceStateCounts
	decode(t, w, &counts)
	assert.Equal(t, int64(1), counts.MissingNumber)

	w = api.do(http.MethodPost, "/invoices/maintenance/fix-missing-numbers", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var backfill billingapp.BackfillResponse
	decode(t, w, &backfill)
	require.Len(t, backfill.Assigned, 1)
	assert.Equal(t, "INV-002501002", backfill.Assigned[0].InvoiceNumber)
}

func TestBillingAPI_Errors(t *testing.T) {
	api := newBillingAPI(t)

	t.Run("unknown invoice", func(t *testing.T) {
		w := api.do(http.MethodGet, "/invoices/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		resp := decode(t, w, nil)
		assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
		assert.NotEmpty(t, resp.Error.RequestID)
	})

	t.Run("malformed id", func(t *testing.T) {
		w := api.do(http.MethodGet, "/invoices/INV-002501001", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("item for unknown invoice", func(t *testing.T) {
		w := api.do(http.MethodPost, "/invoice-items", map[string]any{
			"invoice_id": uuid.New(), "item_type": "service", "item_name": "X", "quantity": 1,
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("validation details", func(t *testing.T) {
		w := api.do(http.MethodPost, "/invoice-items", map[string]any{
			"invoice_id": uuid.New(), "item_type": "bundle", "item_name": "X", "quantity": 0,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w, nil)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		assert.Len(t, resp.Error.Details, 2)
	})

	t.Run("invalid discount", func(t *testing.T) {
		w := api.do(http.MethodPost, "/invoices", map[string]any{
			"client_id": api.client, "discount_percent": "150",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("items list needs an invoice", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/invoice-items", nil).Code)
	})
}
