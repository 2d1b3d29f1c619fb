// Package catalog serves the storefront's product data. The catalog is read
// only; prices here are list prices used for optimistic cart projections and
// the product page. The commerce backend stays authoritative for what a
// shopper pays.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/storefront-backend/internal/domain/cart"
)

//go:embed catalog.yaml
var builtin []byte

var (
	ErrUnknownProduct = errors.New("catalog: unknown product")
	ErrUnknownVariant = errors.New("catalog: unknown variant")
)

type Ingredient struct {
	Name        string `yaml:"name" json:"name"`
	Amount      string `yaml:"amount" json:"amount"`
	DailyAmount string `yaml:"daily_amount" json:"daily_amount"`
	Description string `yaml:"description" json:"description"`
}

type Variant struct {
	ID             string     `yaml:"id" json:"id"`
	Title          string     `yaml:"title" json:"title"`
	Price          cart.Money `yaml:"price" json:"price"`
	CompareAtPrice cart.Money `yaml:"compare_at_price" json:"compare_at_price,omitempty"`
	Available      bool       `yaml:"available" json:"available"`
}

type SubscriptionPlan struct {
	ID          string `yaml:"id" json:"id"`
	Label       string `yaml:"label" json:"label"`
	DiscountBPS int64  `yaml:"discount_bps" json:"discount_bps"`
}

type Product struct {
	ID             string             `yaml:"id" json:"id"`
	Handle         string             `yaml:"handle" json:"handle,omitempty"`
	Title          string             `yaml:"title" json:"title"`
	Subtitle       string             `yaml:"subtitle" json:"subtitle,omitempty"`
	Description    string             `yaml:"description" json:"description,omitempty"`
	Badge          string             `yaml:"badge" json:"badge,omitempty"`
	Image          string             `yaml:"image" json:"image,omitempty"`
	Images         []string           `yaml:"images" json:"images,omitempty"`
	PackageSize    string             `yaml:"package_size" json:"package_size,omitempty"`
	ServingSize    string             `yaml:"serving_size" json:"serving_size,omitempty"`
	SupplyDuration string             `yaml:"supply_duration" json:"supply_duration,omitempty"`
	Benefits       []string           `yaml:"benefits" json:"benefits,omitempty"`
	Ingredients    []Ingredient       `yaml:"ingredients" json:"ingredients,omitempty"`
	Variants       []Variant          `yaml:"variants" json:"variants"`
	Plans          []SubscriptionPlan `yaml:"subscription_plans" json:"subscription_plans,omitempty"`
}

type file struct {
	Currency string    `yaml:"currency"`
	Products []Product `yaml:"products"`
}

type variantRef struct {
	product int
	variant int
}

type Catalog struct {
	currency string
	products []Product
	byID     map[string]int
	variants map[string]variantRef
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(builtin)
}

// Open loads the catalog at path, or the built-in one when path is empty.
func Open(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

func Load(r io.Reader) (*Catalog, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{
		currency: strings.TrimSpace(f.Currency),
		products: f.Products,
		byID:     map[string]int{},
		variants: map[string]variantRef{},
	}
	if c.currency == "" {
		c.currency = "INR"
	}
	for pi, p := range c.products {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("product %d: id required", pi)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate product id %q", p.ID)
		}
		c.byID[p.ID] = pi
		if len(p.Variants) == 0 {
			return nil, fmt.Errorf("product %q has no variants", p.ID)
		}
		for vi, v := range p.Variants {
			if strings.TrimSpace(v.ID) == "" {
				return nil, fmt.Errorf("product %q variant %d: id required", p.ID, vi)
			}
			if v.Price <= 0 {
				return nil, fmt.Errorf("variant %q: price must be positive", v.ID)
			}
			if _, dup := c.variants[v.ID]; dup {
				return nil, fmt.Errorf("duplicate variant id %q", v.ID)
			}
			c.variants[v.ID] = variantRef{product: pi, variant: vi}
		}
		for _, pl := range p.Plans {
			if pl.DiscountBPS < 0 || pl.DiscountBPS >= 10000 {
				return nil, fmt.Errorf("product %q plan %q: discount_bps out of range", p.ID, pl.ID)
			}
		}
	}
	return c, nil
}

func (c *Catalog) Currency() string { return c.currency }

func (c *Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Product looks a product up by id or handle.
func (c *Catalog) Product(id string) (Product, error) {
	if i, ok := c.byID[id]; ok {
		return c.products[i], nil
	}
	for _, p := range c.products {
		if p.Handle != "" && p.Handle == id {
			return p, nil
		}
	}
	return Product{}, ErrUnknownProduct
}

func (c *Catalog) Variant(id string) (Variant, Product, error) {
	ref, ok := c.variants[id]
	if !ok {
		return Variant{}, Product{}, ErrUnknownVariant
	}
	p := c.products[ref.product]
	return p.Variants[ref.variant], p, nil
}

// PriceHint reports the list price and display data used to project an add
// before the backend confirms it.
func (c *Catalog) PriceHint(variantID string) (cart.PriceHint, bool) {
	v, p, err := c.Variant(variantID)
	if err != nil {
		return cart.PriceHint{}, false
	}
	return cart.PriceHint{
		UnitPrice: v.Price,
		Display: cart.DisplayMeta{
			ProductTitle: p.Title,
			VariantTitle: v.Title,
			Image:        p.Image,
		},
	}, true
}

// PriceBook returns a hint for every variant, keyed by variant id.
func (c *Catalog) PriceBook() map[string]cart.PriceHint {
	out := make(map[string]cart.PriceHint, len(c.variants))
	for id := range c.variants {
		h, _ := c.PriceHint(id)
		out[id] = h
	}
	return out
}
