package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Product is the loosely structured payload an "add to cart" control sends.
// Price, name, title and image may come from the product itself or from
// its ParentProduct; Normalizer resolves the fallback chain.
type Product struct {
	ID            int64          `json:"id"`
	Name          Text           `json:"name"`
	Title         Text           `json:"title"`
	SellingPrice  PriceField     `json:"selling_price"`
	OriginalPrice PriceField     `json:"original_price"`
	Images        ImageList      `json:"images"`
	IsRare        bool           `json:"isRare"`
	ParentProduct *ParentProduct `json:"parentProduct,omitempty"`
}

// UnmarshalJSON decodes a product object. Fields of an unexpected type
// degrade instead of failing: an id that is not an integer is 0, isRare
// follows truthiness, and a parentProduct that is not an object is dropped.
// Only a body that is not an object is an error.
func (p *Product) UnmarshalJSON(data []byte) error {
	type plain Product
	var aux struct {
		plain
		ID            json.RawMessage `json:"id"`
		IsRare        json.RawMessage `json:"isRare"`
		ParentProduct json.RawMessage `json:"parentProduct"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*p = Product(aux.plain)
	p.ID = lenientID(aux.ID)
	p.IsRare = truthy(aux.IsRare)

	if raw := bytes.TrimSpace(aux.ParentProduct); len(raw) > 0 && raw[0] == '{' {
		var parent ParentProduct
		if err := json.Unmarshal(raw, &parent); err == nil {
			p.ParentProduct = &parent
		}
	}

	return nil
}

// lenientID reads an integer id given as a number or a numeric string.
func lenientID(raw json.RawMessage) int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0
		}
		text = strings.TrimSpace(text)
	}

	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func truthy(raw json.RawMessage) bool {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var v any
	if err := decoder.Decode(&v); err != nil {
		return false
	}

	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return err == nil && !d.IsZero()
	default:
		// objects and arrays
		return true
	}
}

type ParentProduct struct {
	Name          Text       `json:"name"`
	Title         Text       `json:"title"`
	SellingPrice  PriceField `json:"selling_price"`
	OriginalPrice PriceField `json:"original_price"`
	Images        ImageList  `json:"images"`
}

// PriceField holds a price exactly as the caller sent it: a string or a number.
type PriceField struct {
	raw     string
	numeric bool
}

func PriceString(s string) PriceField {
	return PriceField{raw: s}
}

func PriceNumber(f float64) PriceField {
	return PriceField{raw: strconv.FormatFloat(f, 'f', -1, 64), numeric: true}
}

// Supplied reports whether the field takes part in the fallback chain:
// a non-empty string or a non-zero number.
func (p PriceField) Supplied() bool {
	if p.raw == "" {
		return false
	}
	if p.numeric {
		d, err := decimal.NewFromString(p.raw)
		return err == nil && !d.IsZero()
	}
	return true
}

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// Decimal parses the field. Strings are read up to the first character that
// cannot continue a number, so "19.99 GBP" is 19.99 and "N/A" fails.
func (p PriceField) Decimal() (decimal.Decimal, bool) {
	if !p.Supplied() {
		return decimal.Zero, false
	}

	text := p.raw
	if !p.numeric {
		text = leadingNumber.FindString(strings.TrimSpace(p.raw))
		if text == "" {
			return decimal.Zero, false
		}
	}

	d, err := decimal.NewFromString(text)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return FinitePrice(d)
}

var maxFloatPrice = decimal.NewFromFloat(math.MaxFloat64)

const (
	// float64 overflows to Infinity beyond ~1.8e308
	maxPriceDigits = 309
	// PricePlaces is the precision kept for unit prices.
	PricePlaces = 8
)

// FinitePrice bounds d to what a float64 price can hold and rounds it to
// PricePlaces. Values out of float64 range are rejected; values too small to
// survive rounding become zero. Only digit counts are inspected, so huge
// exponents are never expanded.
func FinitePrice(d decimal.Decimal) (decimal.Decimal, bool) {
	if d.IsZero() {
		return decimal.Zero, true
	}

	magnitude := d.NumDigits() + int(d.Exponent())
	switch {
	case magnitude > maxPriceDigits:
		return decimal.Zero, false
	case magnitude == maxPriceDigits && d.GreaterThan(maxFloatPrice):
		return decimal.Zero, false
	case magnitude < -PricePlaces:
		return decimal.Zero, true
	}

	return d.Round(PricePlaces), true
}

func (p *PriceField) UnmarshalJSON(data []byte) error {
	*p = PriceField{}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		p.raw = s
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		p.raw = string(data)
		p.numeric = true
	}
	// anything else (null, bool, object) is treated as absent

	return nil
}

func (p PriceField) MarshalJSON() ([]byte, error) {
	if p.raw == "" {
		return []byte("null"), nil
	}
	if p.numeric {
		return []byte(p.raw), nil
	}
	return json.Marshal(p.raw)
}

// Text is a display string that also accepts numbers and booleans.
type Text struct {
	value string
}

func TextOf(s string) Text {
	return Text{value: s}
}

func (t Text) String() string {
	return t.value
}

func (t Text) Supplied() bool {
	return t.value != ""
}

func (t *Text) UnmarshalJSON(data []byte) error {
	*t = Text{}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}

	switch v := v.(type) {
	case string:
		t.value = v
	case float64:
		if v != 0 {
			t.value = strconv.FormatFloat(v, 'f', -1, 64)
		}
	case bool:
		if v {
			t.value = "true"
		}
	}

	return nil
}

func (t Text) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

// ImageList accepts an array of image paths or a single path.
// Non-string entries are dropped.
type ImageList []string

func (l ImageList) First() string {
	if len(l) == 0 {
		return ""
	}
	return l[0]
}

func (l *ImageList) UnmarshalJSON(data []byte) error {
	*l = nil

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}

	switch v := v.(type) {
	case string:
		*l = ImageList{v}
	case []any:
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				*l = append(*l, s)
			}
		}
	}

	return nil
}
