package stall

import (
	"time"

	"github.com/gofrs/uuid"
)

type Stall struct {
	ID                  uuid.UUID `json:"id"`
	OwnerID             uuid.UUID `json:"owner_id"`
	Name                string    `json:"name"`
	Description         string    `json:"description,omitempty"`
	Location            string    `json:"location"`
	CuisineType         string    `json:"cuisine_type,omitempty"`
	IsOpen              bool      `json:"is_open"`
	AvgPrepTime         int       `json:"avg_prep_time"` // minutes for a single order
	MaxConcurrentOrders int       `json:"max_concurrent_orders"`
	Rating              float64   `json:"rating"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type MenuItem struct {
	ID           uuid.UUID `json:"id"`
	StallID      uuid.UUID `json:"stall_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	PriceCents   int64     `json:"price_cents"`
	Category     string    `json:"category,omitempty"`
	IsAvailable  bool      `json:"is_available"`
	IsVegetarian bool      `json:"is_vegetarian"`
	IsHalal      bool      `json:"is_halal"`
	PrepTime     int       `json:"preparation_time"`
	CreatedAt    time.Time `json:"created_at"`
}
