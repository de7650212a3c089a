package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogRecord is the current state of a sellable service or product.
type CatalogRecord struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Active      bool
	// StockQuantity is only known for products.
	StockQuantity *int
}

// CatalogLookup reads the service/product catalog.
// Implementations return (nil, nil) when the record does not exist and an
// error only when the catalog could not be consulted.
type CatalogLookup interface {
	GetService(ctx context.Context, id uuid.UUID) (*CatalogRecord, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*CatalogRecord, error)
}

// ClientSummary is the display data of a client embedded in invoice listings.
type ClientSummary struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	ContactInfo string    `json:"other_contact_info,omitempty"`
}

// PetSummary is the display data of a pet embedded in invoice listings.
type PetSummary struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	ClientID  uuid.UUID  `json:"client_id"`
	SpeciesID *uuid.UUID `json:"species_id,omitempty"`
	BreedID   *uuid.UUID `json:"breed_id,omitempty"`
}

// ClientLookup resolves clients by id and by name fragment.
type ClientLookup interface {
	GetClient(ctx context.Context, id uuid.UUID) (*ClientSummary, error)
	FindClientIDsByName(ctx context.Context, fragment string) ([]uuid.UUID, error)
}

// PetLookup resolves pets by id and by name fragment.
type PetLookup interface {
	GetPet(ctx context.Context, id uuid.UUID) (*PetSummary, error)
	FindPetIDsByName(ctx context.Context, fragment string) ([]uuid.UUID, error)
}
