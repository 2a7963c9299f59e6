package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/nikolayk812/storefront-cart/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const SliceCart = "cart"

// State is the application state handed to the codec, one entry per slice.
type State map[string]any

// Codec writes only whitelisted slices of State into the stored document.
type Codec struct {
	Whitelist []string
}

func NewCodec() Codec {
	return Codec{Whitelist: []string{SliceCart}}
}

func (c Codec) Encode(state State) ([]byte, error) {
	doc := make(map[string]any, len(c.Whitelist))
	for name, slice := range state {
		if slices.Contains(c.Whitelist, name) {
			doc[name] = slice
		}
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}

	return payload, nil
}

// DecodeCart reads the cart slice of a stored document. Other slices are
// ignored. A document without a cart slice decodes to an empty cart.
func (c Codec) DecodeCart(payload []byte) (domain.Cart, error) {
	if !slices.Contains(c.Whitelist, SliceCart) {
		return domain.Cart{}, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return domain.Cart{}, fmt.Errorf("json.Unmarshal document: %w", err)
	}

	raw, ok := doc[SliceCart]
	if !ok || string(raw) == "null" {
		return domain.Cart{}, nil
	}

	var cd cartDoc
	if err := json.Unmarshal(raw, &cd); err != nil {
		return domain.Cart{}, fmt.Errorf("json.Unmarshal cart: %w", err)
	}

	return mapCartDocToDomain(cd)
}

type cartDoc struct {
	Items []itemDoc `json:"items"`
	Count int       `json:"count"`
}

type itemDoc struct {
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	Title        string      `json:"title"`
	Image        string      `json:"image"`
	Price        json.Number `json:"price"`
	RegularPrice json.Number `json:"regularPrice"`
	Currency     string      `json:"currency"`
	IsOnSale     bool        `json:"isOnSale"`
	IsRare       bool        `json:"isRare"`
	Quantity     int         `json:"quantity"`
}

// CartSlice is the stored form of the cart slice.
func CartSlice(c domain.Cart) any {
	items := make([]itemDoc, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, itemDoc{
			ID:           item.ID,
			Name:         item.Name,
			Title:        item.Title,
			Image:        item.Image,
			Price:        json.Number(item.Price.Amount.String()),
			RegularPrice: json.Number(item.RegularPrice.Amount.String()),
			Currency:     item.Price.Currency.String(),
			IsOnSale:     item.IsOnSale,
			IsRare:       item.IsRare,
			Quantity:     item.Quantity,
		})
	}

	return cartDoc{Items: items, Count: c.Count}
}

func mapCartDocToDomain(cd cartDoc) (domain.Cart, error) {
	var items []domain.CartItem

	for _, doc := range cd.Items {
		item, err := mapItemDocToDomain(doc)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("item[%d]: %w", doc.ID, err)
		}
		items = append(items, item)
	}

	// count is derived, the stored value is not trusted
	return domain.Cart{Items: items, Count: domain.SumQuantities(items)}, nil
}

func mapItemDocToDomain(doc itemDoc) (domain.CartItem, error) {
	unit := domain.DefaultCurrency
	if doc.Currency != "" {
		parsed, err := currency.ParseISO(doc.Currency)
		if err != nil {
			return domain.CartItem{}, fmt.Errorf("currency[%s] is not valid: %w", doc.Currency, err)
		}
		unit = parsed
	}

	price, err := parseAmount(doc.Price)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("price: %w", err)
	}

	regular := price
	if doc.RegularPrice != "" {
		regular, err = parseAmount(doc.RegularPrice)
		if err != nil {
			return domain.CartItem{}, fmt.Errorf("regularPrice: %w", err)
		}
	}

	return domain.CartItem{
		ID:           doc.ID,
		Name:         doc.Name,
		Title:        doc.Title,
		Image:        doc.Image,
		Price:        domain.Money{Amount: price, Currency: unit},
		RegularPrice: domain.Money{Amount: regular, Currency: unit},
		IsOnSale:     doc.IsOnSale,
		IsRare:       doc.IsRare,
		Quantity:     doc.Quantity,
	}, nil
}

func parseAmount(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}

	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("amount is negative")
	}

	d, ok := domain.FinitePrice(d)
	if !ok {
		return decimal.Zero, errors.New("amount is out of range")
	}

	return d, nil
}
