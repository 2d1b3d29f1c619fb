package ajaxhttp

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/yungbote/storefront-backend/internal/domain/cart"
)

// flexID accepts both numeric and string ids. Variant ids are numbers on the
// wire but opaque strings everywhere else.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type wireItem struct {
	Key               string         `json:"key"`
	ID                flexID         `json:"id"`
	VariantID         flexID         `json:"variant_id"`
	ProductTitle      string         `json:"product_title"`
	VariantTitle      string         `json:"variant_title"`
	Image             string         `json:"image"`
	Quantity          int            `json:"quantity"`
	Price             *int64         `json:"price"`
	FinalPrice        *int64         `json:"final_price"`
	LinePrice         *int64         `json:"line_price"`
	FinalLinePrice    *int64         `json:"final_line_price"`
	OriginalLinePrice *int64         `json:"original_line_price"`
	Properties        map[string]any `json:"properties"`
}

type wireCart struct {
	Token      string     `json:"token"`
	ItemCount  int        `json:"item_count"`
	TotalPrice int64      `json:"total_price"`
	Currency   string     `json:"currency"`
	Items      []wireItem `json:"items"`
}

type addItem struct {
	ID         any               `json:"id"`
	Quantity   int               `json:"quantity"`
	Properties map[string]string `json:"properties,omitempty"`
}

type addRequest struct {
	Items []addItem `json:"items"`
}

type changeRequest struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// wireVariantID sends purely numeric ids as JSON numbers.
func wireVariantID(id string) any {
	id = strings.TrimSpace(id)
	if id == "" {
		return id
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return id
		}
	}
	return json.Number(id)
}

func (w wireCart) snapshot(defaultCurrency string) cart.Snapshot {
	s := cart.Snapshot{
		Items:    make([]cart.LineItem, 0, len(w.Items)),
		Currency: w.Currency,
		Token:    w.Token,
	}
	if s.Currency == "" {
		s.Currency = defaultCurrency
	}
	for _, it := range w.Items {
		s.Items = append(s.Items, it.lineItem())
	}
	// Aggregates are derived from lines; the wire totals are not trusted to
	// agree with them.
	s.Recompute()
	return s
}

func (it wireItem) lineItem() cart.LineItem {
	variant := string(it.VariantID)
	if variant == "" {
		variant = string(it.ID)
	}
	// Absent price fields fall back to the next best one. A present zero is a
	// real price (free gifts, full discounts).
	unit, ok := first(it.FinalPrice, it.Price)
	total, hasTotal := first(it.FinalLinePrice, it.LinePrice)
	if !hasTotal {
		total = unit * int64(it.Quantity)
	}
	orig, hasOrig := first(it.OriginalLinePrice, it.LinePrice)
	if !hasOrig {
		orig = total
	}
	if !ok && it.Quantity > 0 {
		unit = total / int64(it.Quantity)
	}
	return cart.LineItem{
		Key:               it.Key,
		VariantID:         variant,
		Quantity:          it.Quantity,
		UnitPrice:         cart.Money(unit),
		LineTotal:         cart.Money(total),
		OriginalLineTotal: cart.Money(orig),
		Attributes:        stringifyProperties(it.Properties),
		Display: cart.DisplayMeta{
			ProductTitle: it.ProductTitle,
			VariantTitle: it.VariantTitle,
			Image:        it.Image,
		},
	}
}

// first returns the value of the first present field.
func first(fields ...*int64) (int64, bool) {
	for _, f := range fields {
		if f != nil {
			return *f, true
		}
	}
	return 0, false
}

func stringifyProperties(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		default:
			b, err := json.Marshal(t)
			if err != nil {
				continue
			}
			out[k] = string(b)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
