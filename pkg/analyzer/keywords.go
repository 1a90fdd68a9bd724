package analyzer

import (
	"context"
	"sort"
	"strings"

	"github.com/papercomputeco/strata/pkg/content"
)

// DefaultKeywords maps a domain tag to the terms that vote for it.
var DefaultKeywords = map[string][]string{
	"religion":    {"god", "spiritual", "faith", "prayer", "divine", "sacred", "bible", "quran"},
	"philosophy":  {"philosophy", "ethics", "metaphysics", "logic", "consciousness", "existence"},
	"science":     {"research", "study", "analysis", "hypothesis", "experiment", "data", "theory"},
	"literature":  {"novel", "story", "character", "plot", "literary", "fiction", "poetry"},
	"history":     {"historical", "ancient", "medieval", "century", "civilization", "culture"},
	"technology":  {"technology", "software", "computer", "digital", "programming", "algorithm"},
	"medicine":    {"medical", "health", "treatment", "patient", "clinical", "disease", "therapy"},
	"mathematics": {"mathematics", "equation", "theorem", "proof", "number", "formula", "calculation"},
}

// Keyword scores each domain by how many of its keywords occur in the
// item's title, source URL and the first Window bytes of its content. The
// best scoring domain wins; ties go to the alphabetically first domain and a
// zero score yields content.DefaultDomain.
type Keyword struct {
	Keywords map[string][]string
	Window   int
}

// NewKeyword returns a Keyword analyzer over DefaultKeywords.
func NewKeyword(window int) *Keyword {
	return &Keyword{Keywords: DefaultKeywords, Window: window}
}

func (k *Keyword) Analyze(ctx context.Context, item content.Item) (Hints, error) {
	if err := ctx.Err(); err != nil {
		return Hints{}, err
	}

	body := item.Content
	if k.Window > 0 && len(body) > k.Window {
		body = body[:k.Window]
	}
	haystack := strings.ToLower(item.Title + " " + item.SourceURL + " " + body)

	domains := make([]string, 0, len(k.Keywords))
	for d := range k.Keywords {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	best, bestScore := content.DefaultDomain, 0
	for _, d := range domains {
		score := 0
		for _, kw := range k.Keywords[d] {
			if strings.Contains(haystack, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = d, score
		}
	}

	return Hints{DomainTag: best}, nil
}
