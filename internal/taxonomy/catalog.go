// Package taxonomy provides the read-only, versioned category catalog the
// engine categorizes into. Categories are supplied externally; this package
// only validates and indexes them.
package taxonomy

import (
	"fmt"
	"sort"

	"github.com/tallyfin/tally/internal/model"
)

// Well-known slugs the guardrail and fallback layers route to. Every catalog
// the engine runs against must contain them.
const (
	SlugCatchAll     = "uncategorized"
	SlugRefunds      = "refunds-returns"
	SlugClearing     = "payout-clearing"
	SlugSalesTax     = "sales-tax-payable"
	SlugShippingCOGS = "shipping-postage"
)

var requiredSlugs = []string{
	SlugCatchAll,
	SlugRefunds,
	SlugClearing,
	SlugSalesTax,
	SlugShippingCOGS,
}

// Catalog is an immutable, indexed snapshot of one taxonomy version.
type Catalog struct {
	byID    map[string]*model.Category
	bySlug  map[string]*model.Category
	ordered []model.Category
	Version string
}

// NewCatalog builds and validates a catalog from a category list.
func NewCatalog(version string, categories []model.Category) (*Catalog, error) {
	c := &Catalog{
		Version: version,
		byID:    make(map[string]*model.Category, len(categories)),
		bySlug:  make(map[string]*model.Category, len(categories)),
		ordered: make([]model.Category, len(categories)),
	}
	copy(c.ordered, categories)

	for i := range c.ordered {
		cat := &c.ordered[i]
		if err := cat.Validate(); err != nil {
			return nil, fmt.Errorf("invalid category: %w", err)
		}
		if _, dup := c.byID[cat.ID]; dup {
			return nil, fmt.Errorf("duplicate category id %q", cat.ID)
		}
		if _, dup := c.bySlug[cat.Slug]; dup {
			return nil, fmt.Errorf("duplicate category slug %q", cat.Slug)
		}
		c.byID[cat.ID] = cat
		c.bySlug[cat.Slug] = cat
	}

	if err := c.validateTree(); err != nil {
		return nil, err
	}

	for _, slug := range requiredSlugs {
		if _, ok := c.bySlug[slug]; !ok {
			return nil, fmt.Errorf("catalog is missing required category %q", slug)
		}
	}

	return c, nil
}

// validateTree checks that every non-root category has exactly one existing
// parent, and that financial type is inherited down each branch unless the
// child is a contra/clearing leaf.
func (c *Catalog) validateTree() error {
	for i := range c.ordered {
		cat := &c.ordered[i]
		if cat.ParentID == "" {
			continue
		}
		parent, ok := c.byID[cat.ParentID]
		if !ok {
			return fmt.Errorf("category %s: parent %q does not exist", cat.Slug, cat.ParentID)
		}
		if parent.FinancialType != cat.FinancialType &&
			cat.FinancialType != model.FinancialTypeClearing &&
			!isContraLeaf(cat, parent) {
			return fmt.Errorf("category %s: financial type %q diverges from parent %s (%q)",
				cat.Slug, cat.FinancialType, parent.Slug, parent.FinancialType)
		}
	}
	return nil
}

// isContraLeaf reports whether cat is a permitted contra override of its
// parent's branch (e.g. a contra-revenue refunds leaf under revenue).
func isContraLeaf(cat, parent *model.Category) bool {
	return parent.FinancialType == model.FinancialTypeRevenue &&
		(cat.FinancialType == model.FinancialTypeRevenue || cat.FinancialType == model.FinancialTypeLiability)
}

// GetBySlug returns the category with the given slug.
func (c *Catalog) GetBySlug(slug string) (*model.Category, bool) {
	cat, ok := c.bySlug[slug]
	return cat, ok
}

// GetByID returns the category with the given id.
func (c *Catalog) GetByID(id string) (*model.Category, bool) {
	cat, ok := c.byID[id]
	return cat, ok
}

// CatchAll returns the catch-all category every catalog must carry.
func (c *Catalog) CatchAll() *model.Category {
	return c.bySlug[SlugCatchAll]
}

// ListPromptEligible returns the categories to offer the generative fallback,
// sorted by slug for stable prompts. An industry restriction on a category
// hides it from other industries; an empty restriction means all.
func (c *Catalog) ListPromptEligible(industry string) []model.Category {
	var out []model.Category
	for _, cat := range c.ordered {
		if !cat.IncludeInPrompt || !cat.RelevantTo(industry) {
			continue
		}
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// All returns every category in the catalog.
func (c *Catalog) All() []model.Category {
	out := make([]model.Category, len(c.ordered))
	copy(out, c.ordered)
	return out
}
