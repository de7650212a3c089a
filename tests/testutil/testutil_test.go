package testutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vetclinic/backend/internal/domain/billing"
	"github.com/vetclinic/backend/internal/infrastructure/persistence"
	"github.com/vetclinic/backend/internal/interfaces/http/dto"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestNewTestUUID(t *testing.T) {
	assert.Equal(t, NewTestUUID("clinic"), NewTestUUID("clinic"))
	assert.NotEqual(t, NewTestUUID("clinic"), NewTestUUID("other"))
}

func TestClock(t *testing.T) {
	start := time.Date(2025, time.January, 31, 23, 30, 0, 0, time.UTC)
	c := NewClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(time.Hour)
	assert.Equal(t, time.February, c.Now().Month())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestSeeder(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, persistence.AutoMigrateBilling(db))

	seed := NewSeeder(t, db)
	clientID := seed.Client("Maria Lopez")
	petID := seed.Pet(clientID, "Luna")
	serviceID := seed.Service("Consultation", "100.00")
	productID := seed.Product("Dewormer", "12.50", 4)

	ctx := context.Background()
	directory := persistence.NewGormDirectoryLookup(db)
	client, err := directory.GetClient(ctx, clientID)
	require.NoError(t, err)
	assert.Equal(t, "Maria Lopez", client.Name)

	pet, err := directory.GetPet(ctx, petID)
	require.NoError(t, err)
	assert.Equal(t, clientID, pet.ClientID)

	catalog := persistence.NewGormCatalogLookup(db)
	svc, err := catalog.GetService(ctx, serviceID)
	require.NoError(t, err)
	assert.Equal(t, "100", svc.Price.String())

	product, err := catalog.GetProduct(ctx, productID)
	require.NoError(t, err)
	require.NotNil(t, product.StockQuantity)
	assert.Equal(t, 4, *product.StockQuantity)
}

func TestRecordingHandler(t *testing.T) {
	h := NewRecordingHandler(billing.EventTypeInvoiceCreated)
	assert.Equal(t, []string{billing.EventTypeInvoiceCreated}, h.EventTypes())

	inv := &billing.Invoice{InvoiceNumber: "INV-002501001", ClientID: uuid.New()}
	inv.ID = uuid.New()
	require.NoError(t, h.Handle(context.Background(), billing.NewInvoiceCreatedEvent(inv)))
	assert.Equal(t, 1, h.CountByType(billing.EventTypeInvoiceCreated))
	assert.Zero(t, h.CountByType(billing.EventTypeInvoicePaid))

	boom := errors.New("boom")
	h.SetError(boom)
	assert.ErrorIs(t, h.Handle(context.Background(), billing.NewInvoiceCreatedEvent(inv)), boom)
	assert.Len(t, h.Handled(), 2)

	h.Reset()
	assert.Empty(t, h.Handled())
	assert.NoError(t, h.Handle(context.Background(), billing.NewInvoiceCreatedEvent(inv)))
}

func TestAPIClient(t *testing.T) {
	engine := gin.New()
	engine.POST("/echo", func(c *gin.Context) {
		var body map[string]string
		_ = c.ShouldBindJSON(&body)
		c.JSON(http.StatusCreated, dto.NewSuccessResponse(body))
	})
	engine.GET("/missing", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.ErrCodeNotFound, "Invoice not found"))
	})

	client := NewAPIClient(t, engine)

	resp := client.Do(http.MethodPost, "/echo", map[string]string{"name": "Luna"}).RequireStatus(t, http.StatusCreated)
	assert.True(t, resp.Envelope.Success)
	assert.Equal(t, "Luna", DataAs[map[string]string](t, resp)["name"])

	client.Do(http.MethodGet, "/missing", nil).RequireError(t, http.StatusNotFound, dto.ErrCodeNotFound)
}

func TestRequireEventually(t *testing.T) {
	calls := 0
	RequireEventually(t, func() bool {
		calls++
		return calls >= 3
	}, time.Second, time.Millisecond)
	assert.Equal(t, 3, calls)
}
