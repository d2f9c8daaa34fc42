package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCategory is stored when a product is written without a category ("general").
const DefaultCategory = "כללי"

// MaxPrice is the largest value a decimal(10,2) price column holds.
var MaxPrice = decimal.RequireFromString("99999999.99")

func init() {
	// Prices go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Product is a catalog entry.
type Product struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	Name        string          `json:"name" gorm:"size:255;not null"`
	Description string          `json:"description" gorm:"type:text"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	Category    string          `json:"category" gorm:"size:255;default:'כללי'"`
	ImageURL    *string         `json:"image_url" gorm:"size:500"`
	CreatedAt   time.Time       `json:"created_at"`
}
