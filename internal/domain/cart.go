package domain

import "slices"

// Cart is the cart slice of the storefront state.
// Count always equals the sum of Items' quantities.
type Cart struct {
	Items []CartItem
	Count int
}

type CartItem struct {
	ID           int64
	Name         string
	Title        string
	Image        string
	Price        Money
	RegularPrice Money
	IsOnSale     bool
	IsRare       bool
	Quantity     int
}

func (c Cart) Clone() Cart {
	return Cart{
		Items: slices.Clone(c.Items),
		Count: c.Count,
	}
}

// Find returns the index of the line with the given id, or -1.
func (c Cart) Find(id int64) int {
	return slices.IndexFunc(c.Items, func(item CartItem) bool {
		return item.ID == id
	})
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func SumQuantities(items []CartItem) int {
	var total int
	for _, item := range items {
		total += item.Quantity
	}
	return total
}
