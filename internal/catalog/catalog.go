package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"lv-brokerfeed/internal/types"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed instruments.yaml
var defaultInstruments []byte

type Instrument struct {
	Symbol        string              `json:"symbol"`
	Name          string              `json:"name"`
	Icon          string              `json:"icon"`
	Category      types.Category      `json:"category"`
	Digits        int                 `json:"digits"`
	PipSize       decimal.Decimal     `json:"pip_size"`
	ContractSize  decimal.Decimal     `json:"contract_size"`
	BaseCurrency  string              `json:"base_currency"`
	QuoteCurrency string              `json:"quote_currency"`
	PipValue      decimal.NullDecimal `json:"pip_value"`
}

type rawInstrument struct {
	Symbol       string `yaml:"symbol"`
	Name         string `yaml:"name"`
	Icon         string `yaml:"icon"`
	Category     string `yaml:"category"`
	Digits       int    `yaml:"digits"`
	PipSize      string `yaml:"pip_size"`
	ContractSize string `yaml:"contract_size"`
	Base         string `yaml:"base"`
	Quote        string `yaml:"quote"`
	PipValue     string `yaml:"pip_value"`
}

type rawFile struct {
	Instruments []rawInstrument `yaml:"instruments"`
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	items      []Instrument
	bySymbol   map[string]int
	byCategory map[types.Category][]Instrument
}

// Load reads the catalog from path, or the embedded default list when path
// is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(defaultInstruments)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f rawFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	items := make([]Instrument, 0, len(f.Instruments))
	for i, raw := range f.Instruments {
		inst, err := raw.instrument()
		if err != nil {
			return nil, fmt.Errorf("instrument #%d (%s): %w", i, raw.Symbol, err)
		}
		items = append(items, inst)
	}
	return New(items)
}

func New(items []Instrument) (*Catalog, error) {
	c := &Catalog{
		items:      make([]Instrument, 0, len(items)),
		bySymbol:   make(map[string]int, len(items)),
		byCategory: make(map[types.Category][]Instrument),
	}
	for _, inst := range items {
		inst.Symbol = strings.ToUpper(strings.TrimSpace(inst.Symbol))
		inst.BaseCurrency = strings.ToUpper(strings.TrimSpace(inst.BaseCurrency))
		inst.QuoteCurrency = strings.ToUpper(strings.TrimSpace(inst.QuoteCurrency))
		if err := validate(inst); err != nil {
			return nil, fmt.Errorf("%s: %w", inst.Symbol, err)
		}
		if _, dup := c.bySymbol[inst.Symbol]; dup {
			return nil, fmt.Errorf("%s: duplicate symbol", inst.Symbol)
		}
		c.bySymbol[inst.Symbol] = len(c.items)
		c.items = append(c.items, inst)
		c.byCategory[inst.Category] = append(c.byCategory[inst.Category], inst)
	}
	return c, nil
}

// A pip spans at most 10^maxPipTicks display ticks of the instrument.
const maxPipTicks = 2

func validate(inst Instrument) error {
	if inst.Symbol == "" {
		return errors.New("symbol is required")
	}
	if !inst.Category.Valid() {
		return fmt.Errorf("unknown category %q", inst.Category)
	}
	if inst.Digits < 0 {
		return errors.New("digits must not be negative")
	}
	if !inst.PipSize.GreaterThan(decimal.Zero) {
		return errors.New("pip_size must be positive")
	}
	if limit := decimal.New(1, int32(maxPipTicks-inst.Digits)); inst.PipSize.GreaterThan(limit) {
		return fmt.Errorf("pip_size %s is too coarse for %d digits (max %s)", inst.PipSize, inst.Digits, limit)
	}
	if !inst.ContractSize.GreaterThan(decimal.Zero) {
		return errors.New("contract_size must be positive")
	}
	if inst.PipValue.Valid {
		if !inst.PipValue.Decimal.GreaterThan(decimal.Zero) {
			return errors.New("pip_value must be positive")
		}
		return nil
	}
	if inst.QuoteCurrency != "USD" && inst.BaseCurrency != "USD" {
		return errors.New("pip_value is required when neither currency is USD")
	}
	return nil
}

func (r rawInstrument) instrument() (Instrument, error) {
	pip, err := decimal.NewFromString(strings.TrimSpace(r.PipSize))
	if err != nil {
		return Instrument{}, errors.New("invalid pip_size")
	}
	contract, err := decimal.NewFromString(strings.TrimSpace(r.ContractSize))
	if err != nil {
		return Instrument{}, errors.New("invalid contract_size")
	}
	inst := Instrument{
		Symbol:        r.Symbol,
		Name:          strings.TrimSpace(r.Name),
		Icon:          strings.TrimSpace(r.Icon),
		Category:      types.ParseCategory(r.Category),
		Digits:        r.Digits,
		PipSize:       pip,
		ContractSize:  contract,
		BaseCurrency:  r.Base,
		QuoteCurrency: r.Quote,
	}
	if v := strings.TrimSpace(r.PipValue); v != "" {
		pv, err := decimal.NewFromString(v)
		if err != nil {
			return Instrument{}, errors.New("invalid pip_value")
		}
		inst.PipValue = decimal.NullDecimal{Decimal: pv, Valid: true}
	}
	return inst, nil
}

func (c *Catalog) All() []Instrument {
	out := make([]Instrument, len(c.items))
	copy(out, c.items)
	return out
}

// ByCategory never returns nil; unknown categories yield an empty list.
func (c *Catalog) ByCategory(category types.Category) []Instrument {
	items := c.byCategory[category]
	out := make([]Instrument, len(items))
	copy(out, items)
	return out
}

func (c *Catalog) Find(symbol string) (Instrument, bool) {
	i, ok := c.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Instrument{}, false
	}
	return c.items[i], true
}

func (c *Catalog) Contains(symbol string) bool {
	_, ok := c.Find(symbol)
	return ok
}

func (c *Catalog) Symbols() []string {
	out := make([]string, len(c.items))
	for i, inst := range c.items {
		out[i] = inst.Symbol
	}
	return out
}

func (c *Catalog) Counts() map[types.Category]int {
	out := make(map[types.Category]int, len(types.Categories))
	for _, cat := range types.Categories {
		out[cat] = len(c.byCategory[cat])
	}
	return out
}

// Intersect returns the catalog entries whose symbol appears in available,
// preserving catalog order.
func (c *Catalog) Intersect(available []string) []Instrument {
	set := make(map[string]struct{}, len(available))
	for _, s := range available {
		set[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	out := make([]Instrument, 0, len(set))
	for _, inst := range c.items {
		if _, ok := set[inst.Symbol]; ok {
			out = append(out, inst)
		}
	}
	return out
}

// Unlisted returns available symbols missing from the catalog, sorted.
func (c *Catalog) Unlisted(available []string) []string {
	var out []string
	for _, s := range available {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" && !c.Contains(s) {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Categories lists the categories that have at least one instrument, in
// display order.
func (c *Catalog) Categories() []types.Category {
	out := make([]types.Category, 0, len(types.Categories))
	for _, cat := range types.Categories {
		if len(c.byCategory[cat]) > 0 {
			out = append(out, cat)
		}
	}
	return out
}
