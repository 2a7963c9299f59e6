package domain

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const (
	DefaultImageOrigin      = "https://nxadmin.consociate.co.in"
	DefaultPlaceholderImage = "/default-image.jpg"
	FallbackName            = "Unnamed Product"
)

// Normalizer turns a Product payload into a CartItem with quantity 1.
// It never fails: unresolved fields degrade to zero price, the placeholder
// image and the fallback name.
type Normalizer struct {
	ImageOrigin      string
	PlaceholderImage string
	Currency         currency.Unit
}

func NewNormalizer() Normalizer {
	return Normalizer{
		ImageOrigin:      DefaultImageOrigin,
		PlaceholderImage: DefaultPlaceholderImage,
		Currency:         DefaultCurrency,
	}
}

func (n Normalizer) Normalize(p Product) CartItem {
	parent := ParentProduct{}
	if p.ParentProduct != nil {
		parent = *p.ParentProduct
	}

	price, ok := firstPrice(p.SellingPrice, parent.SellingPrice).Decimal()
	if !ok {
		price = decimal.Zero
	}

	regular, ok := firstPrice(p.OriginalPrice, parent.OriginalPrice).Decimal()
	if !ok {
		regular = price
	}

	return CartItem{
		ID:           p.ID,
		Name:         firstText(p.Name, parent.Name, FallbackName),
		Title:        firstText(p.Title, parent.Title, FallbackName),
		Image:        n.resolveImage(p.Images.First(), parent.Images.First()),
		Price:        Money{Amount: price, Currency: n.Currency},
		RegularPrice: Money{Amount: regular, Currency: n.Currency},
		IsOnSale:     price.LessThan(regular),
		IsRare:       p.IsRare,
		Quantity:     1,
	}
}

func (n Normalizer) resolveImage(own, parent string) string {
	image := own
	if image == "" {
		image = parent
	}
	if image == "" {
		image = n.PlaceholderImage
	}

	if strings.HasPrefix(image, "http") {
		return image
	}
	return strings.TrimSuffix(n.ImageOrigin, "/") + ensureLeadingSlash(image)
}

func ensureLeadingSlash(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}

func firstPrice(direct, parent PriceField) PriceField {
	if direct.Supplied() {
		return direct
	}
	return parent
}

func firstText(direct, parent Text, fallback string) string {
	if direct.Supplied() {
		return direct.String()
	}
	if parent.Supplied() {
		return parent.String()
	}
	return fallback
}
