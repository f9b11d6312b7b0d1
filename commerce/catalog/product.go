package catalog

import (
	"errors"
	"strings"

	"github.com/uptrace/bun"
)

var ErrNotFound = errors.New("product not found")

const externalIDWidth = 3

// Product is a sellable item. Stock and Available are owned by inventory
// processes outside this service and are only read here.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID          int64   `bun:"id,pk,autoincrement" json:"id"`
	ExternalID  string  `bun:"external_id,notnull" json:"externalId"`
	Name        string  `bun:"name,notnull" json:"name"`
	Size        string  `bun:"size,notnull" json:"size"`
	Color       string  `bun:"color,notnull" json:"color"`
	Stock       int     `bun:"stock,notnull" json:"stock"`
	Price       float64 `bun:"price,notnull" json:"price"`
	Price100    float64 `bun:"price_100,notnull" json:"price100"`
	Price200    float64 `bun:"price_200,notnull" json:"price200"`
	Available   bool    `bun:"available,notnull" json:"available"`
	Category    string  `bun:"category,notnull" json:"category"`
	Description string  `bun:"description,notnull" json:"description"`
}

// Filter narrows Search. Query matches name, description, category or color
// as a case-insensitive substring; the remaining fields are case-insensitive
// equality filters combined with AND.
type Filter struct {
	Query     string
	Category  string
	Size      string
	Color     string
	Available *bool
}

func (f Filter) matches(p Product) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		hit := false
		for _, field := range []string{p.Name, p.Description, p.Category, p.Color} {
			if strings.Contains(strings.ToLower(field), q) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
		return false
	}
	if f.Size != "" && !strings.EqualFold(p.Size, f.Size) {
		return false
	}
	if f.Color != "" && !strings.EqualFold(p.Color, f.Color) {
		return false
	}
	if f.Available != nil && p.Available != *f.Available {
		return false
	}
	return true
}

// NormalizeExternalID left-pads id with zeros to the catalog's external id width.
func NormalizeExternalID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) >= externalIDWidth {
		return id
	}
	return strings.Repeat("0", externalIDWidth-len(id)) + id
}
