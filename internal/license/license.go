// Package license maps Azure DevOps access-level license types to the
// small set of categories the portal makes upgrade decisions on.
package license

import "strings"

// Category is the closed set of license buckets a row can fall into.
type Category string

const (
	Stakeholder Category = "Stakeholder"
	Basic       Category = "Basic"
	Unknown     Category = "Unknown"
	// NotFound is never produced by a Classifier. It marks organizations
	// where no entitlement matched the identity.
	NotFound Category = "NotFound"
)

// Label returns the default human-readable text for the category.
func (c Category) Label() string {
	if c == NotFound {
		return "Not Found"
	}
	return string(c)
}

// Upgradable reports whether a user in this category may be moved to Basic.
func (c Category) Upgradable() bool {
	return c == Stakeholder
}

// Classification is the result of classifying one entitlement's license.
// Label preserves vendor wording for display when the category is Unknown.
type Classification struct {
	Category Category
	Label    string
}

// Classifier maps a raw license type and optional display name to a
// Classification. Implementations must be total: unrecognized input
// degrades to Unknown, never to an error.
type Classifier interface {
	Classify(licenseType, displayName string) Classification
}

// Vendor license type codes.
const (
	TypeExpress     = "express"
	TypeStakeholder = "stakeholder"
)

// TableClassifier classifies by case-insensitive lookup of the raw type.
type TableClassifier struct {
	table map[string]Category
}

// NewTableClassifier returns a classifier that knows the Azure DevOps
// "express" (Basic) and "stakeholder" license types.
func NewTableClassifier() *TableClassifier {
	return &TableClassifier{
		table: map[string]Category{
			TypeExpress:     Basic,
			TypeStakeholder: Stakeholder,
		},
	}
}

// WithType returns a copy of the classifier that also maps licenseType to category.
func (c *TableClassifier) WithType(licenseType string, category Category) *TableClassifier {
	table := make(map[string]Category, len(c.table)+1)
	for k, v := range c.table {
		table[k] = v
	}
	table[normalize(licenseType)] = category
	return &TableClassifier{table: table}
}

// Classify implements Classifier.
func (c *TableClassifier) Classify(licenseType, displayName string) Classification {
	if category, ok := c.table[normalize(licenseType)]; ok {
		return Classification{Category: category, Label: category.Label()}
	}

	if displayName != "" {
		return Classification{Category: Unknown, Label: displayName}
	}

	return Classification{Category: Unknown, Label: licenseType}
}

func normalize(s string) string {
	return strings.ToLower(s)
}
