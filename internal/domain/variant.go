package domain

import "time"

// Variant is a sellable inventory unit: one purchasable configuration of a
// product (e.g. a color/capacity combination) with its own stock counts.
type Variant struct {
	ID            string
	SKU           string
	Name          string
	StockTotal    int
	StockReserved int
	CreatedAt     time.Time
}

// Available is the stock a new reservation can still claim.
func (v Variant) Available() int {
	return v.StockTotal - v.StockReserved
}
