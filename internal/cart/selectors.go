package cart

import (
	"github.com/nikolayk812/storefront-cart/internal/domain"
	"golang.org/x/text/currency"
)

func Count(c domain.Cart) int {
	return c.Count
}

func LineTotal(item domain.CartItem) domain.Money {
	return item.Price.Mul(item.Quantity)
}

// Subtotal sums price * quantity over all lines. It is recomputed on every
// call. An empty cart yields zero in the default currency.
func Subtotal(c domain.Cart) domain.Money {
	total := domain.ZeroMoney(cartCurrency(c))
	for _, item := range c.Items {
		total = total.Add(LineTotal(item))
	}
	return total
}

// Savings is what on-sale lines save against their regular price.
func Savings(c domain.Cart) domain.Money {
	total := domain.ZeroMoney(cartCurrency(c))
	for _, item := range c.Items {
		if !item.IsOnSale {
			continue
		}
		total = total.Add(item.RegularPrice.Sub(item.Price).Mul(item.Quantity))
	}
	return total
}

func cartCurrency(c domain.Cart) currency.Unit {
	if len(c.Items) == 0 {
		return domain.DefaultCurrency
	}
	return c.Items[0].Price.Currency
}
