package content

import "strings"

// Type is the coarse content class of an Item. Together with the domain tag
// it selects the dynamic relational table an item lands in.
type Type string

const (
	TypeBook           Type = "book"
	TypeAcademicPaper  Type = "academic_paper"
	TypeReference      Type = "reference"
	TypeLargeDocument  Type = "large_document"
	TypeMediumDocument Type = "medium_document"
	TypeSmallDocument  Type = "small_document"

	// TypeDenseText is not classified from input; the strategy classifier
	// routes high information density items into it so they share one
	// dedicated full-text table per domain.
	TypeDenseText Type = "dense_text"
)

var urlIndicators = []struct {
	t       Type
	markers []string
}{
	{TypeBook, []string{"book", "ebook", "gutenberg"}},
	{TypeAcademicPaper, []string{"paper", "journal", "arxiv"}},
	{TypeReference, []string{"wiki", "encyclopedia"}},
}

// ClassifyType infers the content type from URL markers first and falls
// back to size bands (>10MB book, >1MB large, >100KB medium).
func ClassifyType(sourceURL string, sizeBytes int64) Type {
	url := strings.ToLower(sourceURL)
	for _, ind := range urlIndicators {
		for _, m := range ind.markers {
			if strings.Contains(url, m) {
				return ind.t
			}
		}
	}

	switch {
	case sizeBytes > 10_000_000:
		return TypeBook
	case sizeBytes > 1_000_000:
		return TypeLargeDocument
	case sizeBytes > 100_000:
		return TypeMediumDocument
	default:
		return TypeSmallDocument
	}
}

// LargeText reports whether tables of this type are laid out for full-text
// search rather than metadata lookups.
func (t Type) LargeText() bool {
	switch t {
	case TypeBook, TypeAcademicPaper, TypeLargeDocument, TypeDenseText:
		return true
	}
	return false
}
