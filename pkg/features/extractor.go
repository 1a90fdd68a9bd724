package features

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/logger"
)

const (
	defaultWindow    = 10_000
	defaultCacheSize = 4096

	structureMarkers = "chapter|section|table|list"
	referenceMarkers = "http|www|doi|isbn"
	punctuation      = ".,;:!?"
)

// Config configures an Extractor.
type Config struct {
	// Window bounds how many bytes of content are analysed. Size-dependent
	// features still use the full SizeBytes.
	Window int

	// Tokenizer defaults to WhitespaceTokenizer.
	Tokenizer Tokenizer

	// AcademicDomains raise query potential.
	AcademicDomains []string

	// CacheSize is the number of feature vectors memoised by content hash.
	// Zero uses a default; a negative value disables the cache.
	CacheSize int64

	Logger *slog.Logger
}

// Extractor computes FeatureVectors. It is safe for concurrent use and
// deterministic: the same item always yields the same vector.
type Extractor struct {
	window    int
	tokenizer Tokenizer
	academic  []string
	cache     *ristretto.Cache[string, FeatureVector]
	logger    *slog.Logger
}

// New creates an Extractor.
func New(c Config) (*Extractor, error) {
	e := &Extractor{
		window:    c.Window,
		tokenizer: c.Tokenizer,
		academic:  c.AcademicDomains,
		logger:    c.Logger,
	}
	if e.window <= 0 {
		e.window = defaultWindow
	}
	if e.tokenizer == nil {
		e.tokenizer = WhitespaceTokenizer{}
	}
	if e.logger == nil {
		e.logger = logger.Nop()
	}

	size := c.CacheSize
	if size == 0 {
		size = defaultCacheSize
	}
	if size > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, FeatureVector]{
			NumCounters: size * 10,
			MaxCost:     size,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("creating feature cache: %w", err)
		}
		e.cache = cache
	}

	return e, nil
}

// Close releases the cache.
func (e *Extractor) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

// Extract computes the FeatureVector of item.
func (e *Extractor) Extract(item content.Item) (FeatureVector, error) {
	if item.SizeBytes < 0 {
		return FeatureVector{}, fmt.Errorf("%w: negative size %d", ErrFeatureExtractionFailed, item.SizeBytes)
	}

	text := analysisWindow(item.Content, e.window)
	if !utf8.ValidString(text) {
		return FeatureVector{}, fmt.Errorf("%w: content is not valid UTF-8", ErrFeatureExtractionFailed)
	}

	domain := item.DomainTag
	if domain == "" {
		domain = content.DefaultDomain
	}

	key := e.cacheKey(item, domain, text)
	if e.cache != nil {
		if fv, ok := e.cache.Get(key); ok {
			return cloneVector(fv), nil
		}
	}

	fv, err := e.compute(item, domain, text)
	if err != nil {
		return FeatureVector{}, err
	}

	if e.cache != nil {
		e.cache.Set(key, cloneVector(fv), 1)
	}

	e.logger.Debug("extracted features",
		"item_id", item.ID,
		"size_bytes", fv.SizeBytes,
		"complexity", fv.SemanticComplexity,
		"coherence", fv.TopicCoherence,
		"density", fv.InformationDensity,
		"query_potential", fv.QueryPotential,
		"low_confidence", fv.LowConfidence,
	)

	return fv, nil
}

func (e *Extractor) compute(item content.Item, domain, text string) (FeatureVector, error) {
	fv := FeatureVector{
		SizeBytes:   item.SizeBytes,
		DomainTag:   domain,
		ContentType: item.ContentType,
	}
	if fv.ContentType == "" {
		fv.ContentType = content.ClassifyType(item.SourceURL, item.SizeBytes)
	}

	fv.QueryPotential = e.queryPotential(text, item.SizeBytes, domain)

	if strings.TrimSpace(text) == "" {
		fv.SemanticComplexity = 0.5
		fv.TopicCoherence = 0.5
		fv.InformationDensity = 0.3
		fv.note("empty content: neutral scores used")
		return fv, nil
	}

	tokens, err := e.tokenizer.Tokenize(text)
	if err != nil {
		return FeatureVector{}, fmt.Errorf("%w: tokenizing: %w", ErrFeatureExtractionFailed, err)
	}
	fv.WordCount = len(tokens)
	if len(tokens) == 0 {
		fv.SemanticComplexity = 0.5
		fv.TopicCoherence = 0.5
		fv.InformationDensity = 0.3
		fv.note("no tokens: neutral scores used")
		return fv, nil
	}

	sentences := countSentences(text)
	avgSentence := float64(len(tokens)) / float64(sentences)

	fv.SemanticComplexity = complexity(tokens, avgSentence)

	if len(tokens) < MinWords {
		fv.TopicCoherence = 0.3
		fv.InformationDensity = 0.3
		fv.note("short content (%d words): coherence and density defaulted", len(tokens))
		return fv, nil
	}

	fv.TopicCoherence = coherence(tokens)
	fv.InformationDensity = density(text, tokens, avgSentence)

	return fv, nil
}

// complexity mixes average word length with average sentence length.
func complexity(tokens []string, avgSentence float64) float64 {
	var letters, words int
	for _, t := range tokens {
		w := trimWord(t)
		if w == "" {
			continue
		}
		letters += utf8.RuneCountInString(w)
		words++
	}
	if words == 0 {
		return 0.5
	}
	avgWord := float64(letters) / float64(words)
	return clamp01(avgWord*0.1 + avgSentence*0.01)
}

// coherence is the coefficient of variation of the frequencies of words
// longer than three characters: repeated key terms raise it.
func coherence(tokens []string) float64 {
	freq := map[string]int{}
	for _, t := range tokens {
		w := strings.ToLower(trimWord(t))
		if utf8.RuneCountInString(w) > 3 {
			freq[w]++
		}
	}
	if len(freq) == 0 {
		return 0.3
	}

	var sum float64
	for _, n := range freq {
		sum += float64(n)
	}
	mean := sum / float64(len(freq))

	var sq float64
	for _, n := range freq {
		d := float64(n) - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(freq)))

	return clamp01(std / mean)
}

// density combines sentence length, vocabulary spread and punctuation.
func density(text string, tokens []string, avgSentence float64) float64 {
	unique := map[string]struct{}{}
	for _, t := range tokens {
		unique[t] = struct{}{}
	}
	uniqueRatio := float64(len(unique)) / float64(len(tokens))

	var punct int
	for _, r := range text {
		if strings.ContainsRune(punctuation, r) {
			punct++
		}
	}
	punctDensity := float64(punct) / float64(utf8.RuneCountInString(text))

	return clamp01(avgSentence*0.02 + uniqueRatio + punctDensity*2)
}

// queryPotential averages a length factor, structure markers, reference
// markers and the value of the domain.
func (e *Extractor) queryPotential(text string, size int64, domain string) float64 {
	lower := strings.ToLower(text)

	length := math.Min(1, float64(size)/10_000)

	structure := 0.3
	if containsAny(lower, structureMarkers) {
		structure = 1
	}

	references := 0.5
	if containsAny(lower, referenceMarkers) {
		references = 1
	}

	domainValue := 0.5
	if slices.Contains(e.academic, domain) {
		domainValue = 1
	}

	return clamp01((length + structure + references + domainValue) / 4)
}

func containsAny(s, markers string) bool {
	for _, m := range strings.Split(markers, "|") {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func countSentences(text string) int {
	n := 0
	for _, s := range strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '!' || r == '?' }) {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
}

// analysisWindow returns at most limit bytes of s without splitting a rune.
func analysisWindow(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (e *Extractor) cacheKey(item content.Item, domain, text string) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write([]byte(item.ContentType))
	h.Write([]byte{0})
	h.Write([]byte(item.SourceURL))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(item.SizeBytes, 10)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func cloneVector(fv FeatureVector) FeatureVector {
	fv.Notes = slices.Clone(fv.Notes)
	return fv
}
