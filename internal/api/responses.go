package api

import (
	"encoding/json"
	"net/http"

	"github.com/nikolayk812/storefront-cart/internal/cart"
	"github.com/nikolayk812/storefront-cart/internal/domain"
)

type errorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

type cartResponse struct {
	Items    []itemResponse `json:"items"`
	Count    int            `json:"count"`
	Subtotal string         `json:"subtotal"`
	Savings  string         `json:"savings"`
	Currency string         `json:"currency"`
}

type itemResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Title        string `json:"title"`
	Image        string `json:"image"`
	Price        string `json:"price"`
	RegularPrice string `json:"regularPrice"`
	LineTotal    string `json:"lineTotal"`
	IsOnSale     bool   `json:"isOnSale"`
	IsRare       bool   `json:"isRare"`
	Quantity     int    `json:"quantity"`
}

type countResponse struct {
	Count int `json:"count"`
}

func newCartResponse(c domain.Cart) cartResponse {
	subtotal := cart.Subtotal(c)

	items := make([]itemResponse, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, itemResponse{
			ID:           item.ID,
			Name:         item.Name,
			Title:        item.Title,
			Image:        item.Image,
			Price:        item.Price.Amount.StringFixed(2),
			RegularPrice: item.RegularPrice.Amount.StringFixed(2),
			LineTotal:    cart.LineTotal(item).Amount.StringFixed(2),
			IsOnSale:     item.IsOnSale,
			IsRare:       item.IsRare,
			Quantity:     item.Quantity,
		})
	}

	return cartResponse{
		Items:    items,
		Count:    cart.Count(c),
		Subtotal: subtotal.Amount.StringFixed(2),
		Savings:  cart.Savings(c).Amount.StringFixed(2),
		Currency: subtotal.Currency.String(),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string, details map[string]string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}
