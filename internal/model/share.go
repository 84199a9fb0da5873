package model

import (
	"errors"
	"fmt"
	"strings"
)

// MaskChar replaces every character of a hidden value.
const MaskChar = '*'

// ErrShareForbidden is returned when sharing is disabled in settings.
var ErrShareForbidden = errors.New("sharing is disabled")

// Mask replaces every rune of s with MaskChar.
func Mask(s string) string {
	return strings.Repeat(string(MaskChar), len([]rune(s)))
}

// Masked returns a copy of the item with provider name, email and phone masked.
func (i Item) Masked() Item {
	i.ProviderName = Mask(i.ProviderName)
	i.ProviderEmail = Mask(i.ProviderEmail)
	i.ProviderPhone = Mask(i.ProviderPhone)
	return i
}

// ShareText renders the plain-text summary handed to other apps.
func ShareText(i Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Item Name: %s\n", i.Name)
	fmt.Fprintf(&b, "Price: %s\n", formatDecimal(i.Price))
	fmt.Fprintf(&b, "In Stock: %d\n", i.Quantity)
	fmt.Fprintf(&b, "Provider: %s\n", i.ProviderName)
	fmt.Fprintf(&b, "Email: %s\n", i.ProviderEmail)
	fmt.Fprintf(&b, "Phone: %s", i.ProviderPhone)
	return b.String()
}
