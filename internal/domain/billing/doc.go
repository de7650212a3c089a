// Package billing holds the invoicing model of the veterinary practice backend.
//
// Key Aggregates:
//   - Invoice: billing header whose totals are derived from its items
//   - InvoiceItem: a billable service or product line attached to an invoice
//
// Domain Services:
//   - SnapshotResolver: freezes catalog data into an item at creation time
//   - ComputeTotals / NetPrice: pure totals arithmetic with 2-decimal rounding
//   - NextInvoiceNumber / FormatInvoiceNumber: INV-00{YY}{MM}{NNN} numbering
//
// Clients, pets and the service/product catalog are owned by other parts of
// the system and reached through the CatalogLookup, ClientLookup and PetLookup
// ports declared in lookup.go.
package billing
