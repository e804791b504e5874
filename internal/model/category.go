// Package model defines the core domain models used throughout the engine.
package model

import "fmt"

// FinancialType classifies where a category lands on the financial
// statements.
type FinancialType string

// Financial type constants.
const (
	FinancialTypeRevenue   FinancialType = "revenue"
	FinancialTypeCOGS      FinancialType = "cogs"
	FinancialTypeOpex      FinancialType = "opex"
	FinancialTypeLiability FinancialType = "liability"
	FinancialTypeClearing  FinancialType = "clearing"
	FinancialTypeAsset     FinancialType = "asset"
	FinancialTypeEquity    FinancialType = "equity"
)

// AttributeSpec describes one attribute a category may carry.
type AttributeSpec struct {
	Type       string   // "string", "number", "boolean", "enum"
	EnumValues []string // Populated when Type == "enum"
	Required   bool
}

// Category is an immutable-per-version node in the taxonomy tree.
type Category struct {
	ID              string
	Slug            string
	ParentID        string
	Name            string
	Description     string
	FinancialType   FinancialType
	AttributeSchema map[string]AttributeSpec
	Industries      []string // Empty = relevant to every industry
	IsProfitAndLoss bool
	IncludeInPrompt bool
}

// RelevantTo reports whether the category should be offered to orgs in the
// given industry.
func (c *Category) RelevantTo(industry string) bool {
	if len(c.Industries) == 0 || industry == "" {
		return true
	}
	for _, ind := range c.Industries {
		if ind == industry {
			return true
		}
	}
	return false
}

// IsExpense reports whether money leaving the account naturally lands here.
func (c *Category) IsExpense() bool {
	return c.FinancialType == FinancialTypeCOGS || c.FinancialType == FinancialTypeOpex
}

// Validate ensures the category satisfies the taxonomy invariants.
func (c *Category) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("category id is required")
	}
	if c.Slug == "" {
		return fmt.Errorf("category %s: slug is required", c.ID)
	}
	switch c.FinancialType {
	case FinancialTypeRevenue, FinancialTypeCOGS, FinancialTypeOpex,
		FinancialTypeLiability, FinancialTypeClearing, FinancialTypeAsset,
		FinancialTypeEquity:
	default:
		return fmt.Errorf("category %s: unknown financial type %q", c.Slug, c.FinancialType)
	}
	for name, spec := range c.AttributeSchema {
		if name == "" {
			return fmt.Errorf("category %s: attribute with empty name", c.Slug)
		}
		if spec.Type == "enum" && len(spec.EnumValues) == 0 {
			return fmt.Errorf("category %s: enum attribute %q has no values", c.Slug, name)
		}
	}
	return nil
}
