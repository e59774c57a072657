/*
Package catalog holds the static point-package and premium-feature
reference data.

PURPOSE:
  Read-only configuration consumed by the purchase reconciler (package
  point values are re-checked here, never trusted from callers) and the
  feature unlock gate (required point costs). Prices are money, so they
  are decimal.Decimal - never float.

USAGE:
  cat := catalog.Default()
  pkg, err := cat.Package("premium") // 3000 points
  feat, err := cat.Feature("advanced_analytics")

SEE ALSO:
  - purchase/reconciler.go: validates submitted purchases against packages
  - feature/gate.go: validates unlocks against features
*/
package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnknownPackage is returned when a package id is not in the catalog.
	ErrUnknownPackage = errors.New("unknown point package")

	// ErrUnknownFeature is returned when a feature id is not in the catalog.
	ErrUnknownFeature = errors.New("unknown feature")
)

// =============================================================================
// TYPES
// =============================================================================

// Package is a purchasable point bundle.
type Package struct {
	ID          string
	Title       string
	Points      int64
	Price       decimal.Decimal
	Description string
	Perks       []string
	Popular     bool
	Featured    bool
}

// Feature is a premium feature unlockable with points.
type Feature struct {
	ID             string
	Name           string
	Description    string
	RequiredPoints int64
	Category       FeatureCategory
}

type FeatureCategory string

const (
	CategoryAnalytics     FeatureCategory = "analytics"
	CategorySocial        FeatureCategory = "social"
	CategoryCustomization FeatureCategory = "customization"
	CategorySupport       FeatureCategory = "support"
	CategoryData          FeatureCategory = "data"
)

// =============================================================================
// CATALOG - Immutable after construction
// =============================================================================

// Catalog indexes packages and features by id. Construct once at startup;
// lookups are read-only and safe for concurrent use.
type Catalog struct {
	packages  map[string]Package
	features  map[string]Feature
	pkgOrder  []string
	featOrder []string
}

func New(packages []Package, features []Feature) *Catalog {
	c := &Catalog{
		packages: make(map[string]Package, len(packages)),
		features: make(map[string]Feature, len(features)),
	}
	for _, p := range packages {
		c.packages[p.ID] = p
		c.pkgOrder = append(c.pkgOrder, p.ID)
	}
	for _, f := range features {
		c.features[f.ID] = f
		c.featOrder = append(c.featOrder, f.ID)
	}
	return c
}

// Package looks up a point package by id.
func (c *Catalog) Package(id string) (Package, error) {
	p, ok := c.packages[id]
	if !ok {
		return Package{}, ErrUnknownPackage
	}
	return p, nil
}

// Feature looks up a premium feature by id.
func (c *Catalog) Feature(id string) (Feature, error) {
	f, ok := c.features[id]
	if !ok {
		return Feature{}, ErrUnknownFeature
	}
	return f, nil
}

// Packages returns all packages in catalog order.
func (c *Catalog) Packages() []Package {
	out := make([]Package, 0, len(c.pkgOrder))
	for _, id := range c.pkgOrder {
		out = append(out, c.packages[id])
	}
	return out
}

// Features returns all features in catalog order.
func (c *Catalog) Features() []Feature {
	out := make([]Feature, 0, len(c.featOrder))
	for _, id := range c.featOrder {
		out = append(out, c.features[id])
	}
	return out
}
