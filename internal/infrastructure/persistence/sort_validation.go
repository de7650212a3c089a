package persistence

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sortSpec whitelists the columns a list endpoint may order by
type sortSpec struct {
	allowed      map[string]bool
	defaultField string
}

var invoiceSort = sortSpec{
	allowed: map[string]bool{
		"created_at":      true,
		"updated_at":      true,
		"invoice_number":  true,
		"invoice_date":    true,
		"due_date":        true,
		"client_id":       true,
		"subtotal":        true,
		"discount_amount": true,
		"total":           true,
		"deposit":         true,
		"status":          true,
		"payment_status":  true,
	},
	defaultField: "created_at",
}

// field returns requested when it is whitelisted, else the default column
func (s sortSpec) field(requested string) string {
	requested = strings.TrimSpace(requested)
	if s.allowed[requested] {
		return requested
	}
	return s.defaultField
}

// descending reports whether dir asks for descending order. Anything other
// than "asc" sorts newest first.
func descending(dir string) bool {
	return !strings.EqualFold(strings.TrimSpace(dir), "asc")
}

// apply orders query by the requested column with id as a tiebreaker so
// paging is stable
func (s sortSpec) apply(query *gorm.DB, orderBy, orderDir string) *gorm.DB {
	desc := descending(orderDir)
	return query.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: s.field(orderBy)}, Desc: desc},
		{Column: clause.Column{Name: "id"}, Desc: desc},
	}})
}
