package billing

import "github.com/vetclinic/backend/internal/domain/shared"

// Billing specific errors. Codes reuse the shared taxonomy so transports can
// map them without knowing this package.
var (
	ErrInvoiceNotFound     = shared.NewDomainError(shared.CodeNotFound, "Invoice not found")
	ErrInvoiceItemNotFound = shared.NewDomainError(shared.CodeNotFound, "Invoice item not found")
	ErrInvoiceDeleted      = shared.NewDomainError(shared.CodeInvalidState, "Invoice is deleted")
	ErrSequenceUnavailable = shared.NewDomainError(shared.CodeDependencyUnavailable, "Invoice number sequence is unavailable")
)

func validationError(message string) *shared.DomainError {
	return shared.NewDomainError(shared.CodeValidation, message)
}
