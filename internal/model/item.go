package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// SourceManual marks items entered by hand.
const SourceManual = "manual"

// Item is a single inventory record with commercial and supplier metadata.
type Item struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	Quantity      int       `json:"quantity"`
	ProviderName  string    `json:"provider_name"`
	ProviderEmail string    `json:"provider_email"`
	ProviderPhone string    `json:"provider_phone"`
	Source        string    `json:"source"`
	HasImage      bool      `json:"has_image"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ItemDetails is the editable form state of an item. Price and quantity are
// kept as typed so that validation can reject blank input.
type ItemDetails struct {
	ID            int64  `json:"id"`
	Name          string `json:"name" validate:"notblank"`
	Price         string `json:"price" validate:"notblank,price"`
	Quantity      string `json:"quantity" validate:"notblank,quantity"`
	ProviderName  string `json:"provider_name"`
	ProviderEmail string `json:"provider_email" validate:"omitempty,provider_email"`
	ProviderPhone string `json:"provider_phone" validate:"omitempty,provider_phone"`
	Source        string `json:"source"`
}

// NewItemDetails returns an empty entry form.
func NewItemDetails() ItemDetails {
	return ItemDetails{Source: SourceManual}
}

// ToItem converts form state to an Item. An unparsable or non-finite price
// becomes 0.0 and an unparsable quantity becomes 0.
func (d ItemDetails) ToItem() Item {
	price, err := strconv.ParseFloat(strings.TrimSpace(d.Price), 64)
	if err != nil || math.IsInf(price, 0) || math.IsNaN(price) {
		price = 0
	}
	quantity, err := strconv.Atoi(strings.TrimSpace(d.Quantity))
	if err != nil {
		quantity = 0
	}
	source := d.Source
	if source == "" {
		source = SourceManual
	}
	return Item{
		ID:            d.ID,
		Name:          d.Name,
		Price:         price,
		Quantity:      quantity,
		ProviderName:  d.ProviderName,
		ProviderEmail: d.ProviderEmail,
		ProviderPhone: d.ProviderPhone,
		Source:        source,
	}
}

// Details converts an Item back to form state.
func (i Item) Details() ItemDetails {
	return ItemDetails{
		ID:            i.ID,
		Name:          i.Name,
		Price:         formatDecimal(i.Price),
		Quantity:      strconv.Itoa(i.Quantity),
		ProviderName:  i.ProviderName,
		ProviderEmail: i.ProviderEmail,
		ProviderPhone: i.ProviderPhone,
		Source:        i.Source,
	}
}

// formatDecimal renders f in plain notation with at least one fractional
// digit, so 12 becomes "12.0".
func formatDecimal(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// OutOfStock reports whether the item can no longer be sold.
func (i Item) OutOfStock() bool {
	return i.Quantity <= 0
}

// FormattedPrice renders the price as a currency amount.
func (i Item) FormattedPrice() string {
	return fmt.Sprintf("$%.2f", i.Price)
}
