// Package content defines the items strata ingests and their lifecycle state.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Status is the persistence state of an Item. An Item is pending until the
// writer reports back; it is stored only when every target store for its
// strategy acknowledged the write.
type Status string

const (
	StatusPending  Status = "pending"
	StatusStored   Status = "stored"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusStored, StatusDegraded, StatusFailed:
		return true
	}
	return false
}

const (
	// DefaultDomain is used when no analyzer produced a domain tag.
	DefaultDomain = "general"

	// DefaultLanguage is used when the caller did not supply a language.
	DefaultLanguage = "en"
)

// Item is a unit of text content to be stored.
type Item struct {
	ID          string
	Title       string
	Content     string
	SizeBytes   int64
	Language    string
	DomainTag   string
	ContentType Type
	Author      string
	SourceURL   string
	CreatedAt   time.Time
	Status      Status
}

// Option customises an Item built by NewItem.
type Option func(*Item)

func WithSourceURL(url string) Option {
	return func(i *Item) { i.SourceURL = url }
}

func WithDomain(domain string) Option {
	return func(i *Item) { i.DomainTag = domain }
}

func WithLanguage(lang string) Option {
	return func(i *Item) { i.Language = lang }
}

func WithAuthor(author string) Option {
	return func(i *Item) { i.Author = author }
}

func WithCreatedAt(t time.Time) Option {
	return func(i *Item) { i.CreatedAt = t }
}

// WithContentType pins the content type instead of classifying it from the
// source URL and size.
func WithContentType(t Type) Option {
	return func(i *Item) { i.ContentType = t }
}

// NewItem builds a pending Item. The ID is derived from the source URL when
// one is given and from the content otherwise, so re-ingesting the same
// document addresses the same records.
func NewItem(title, body string, opts ...Option) Item {
	item := Item{
		Title:     title,
		Content:   body,
		SizeBytes: int64(len(body)),
		Language:  DefaultLanguage,
		CreatedAt: time.Now().UTC(),
		Status:    StatusPending,
	}

	for _, opt := range opts {
		opt(&item)
	}

	item.ID = ContentID(item.SourceURL, body)
	item.DomainTag = NormalizeDomain(item.DomainTag)
	if item.ContentType == "" {
		item.ContentType = ClassifyType(item.SourceURL, item.SizeBytes)
	}

	return item
}

// ContentID returns the stable identifier for a document: a hash of its
// source URL, or of its body when the URL is empty.
func ContentID(sourceURL, body string) string {
	key := body
	if sourceURL != "" {
		key = "url:" + sourceURL
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

// NormalizeDomain lower-cases and trims a domain tag. Empty tags are left
// empty so callers can tell "unknown" apart from DefaultDomain.
func NormalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}
