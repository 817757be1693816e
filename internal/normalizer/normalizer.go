// Package normalizer turns raw scraped job records into a canonical
// comparable form. Everything here is pure; the only failure mode is a
// missing required field.
package normalizer

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
)

// RawJobRecord is a single scraped posting as delivered by a site adapter.
// Immutable once captured.
type RawJobRecord struct {
	SourcePlatform string     `json:"source_platform"`
	ScrapeRunID    string     `json:"scrape_run_id"`
	Title          string     `json:"title"`
	Company        string     `json:"company"`
	CompanyDomain  string     `json:"company_domain"`
	Location       string     `json:"location"`
	Description    string     `json:"description"`
	PostedAt       *time.Time `json:"posted_at"`
	Compensation   *CompRange `json:"compensation"`
	URL            string     `json:"url"`
	ExternalID     string     `json:"external_id"`
	ObservedAt     *time.Time `json:"observed_at"`
}

// CompRange is the raw compensation block of a posting.
type CompRange struct {
	Currency string  `json:"currency"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Interval string  `json:"interval"`
}

// View is the normalized, derived form of a record. It exists only during
// resolution and is never persisted.
type View struct {
	Title        string // case-folded, whitespace-collapsed; seniority tokens preserved
	DisplayTitle string

	Company        string // case-folded company with corporate suffixes stripped
	CompanySlug    string // canonical identity key for the company
	CompanyDisplay string
	CompanyDomain  string

	City    string
	Region  string
	Country string

	DescriptionSnippet string

	Comp CompBucket
}

// CompBucket is compensation normalized for identity comparison. An absent
// compensation is its own bucket, distinct from a stated zero.
type CompBucket struct {
	Stated   bool
	Currency string
	Min      int64
	Max      int64
	Interval string
}

// Key renders the bucket as a stable fingerprint component.
func (b CompBucket) Key() string {
	if !b.Stated {
		return "none"
	}
	return fmt.Sprintf("%s:%d-%d:%s", b.Currency, b.Min, b.Max, b.Interval)
}

// NormalizationError names the required field a record is missing.
type NormalizationError struct {
	Field string
}

func (e *NormalizationError) Error() string {
	return "normalization: missing required field " + e.Field
}

var (
	whitespaceRe    = regexp.MustCompile(`\s+`)
	companySuffixRe = regexp.MustCompile(`\s+(inc\.?|incorporated|corp\.?|corporation|ltd\.?|limited|llc|llp|lp|co\.?|company|gmbh)$`)
	htmlTagRe       = regexp.MustCompile(`<[^>]+>`)
	sentenceEndRe   = regexp.MustCompile(`[.!?]+`)

	folder = cases.Fold()
)

const snippetMaxLen = 200

// Normalize derives the comparable view of a raw record. Records without a
// title or company are rejected before they enter the pipeline.
func Normalize(rec RawJobRecord) (View, error) {
	title := collapse(rec.Title)
	if title == "" {
		return View{}, &NormalizationError{Field: "title"}
	}
	company := collapse(rec.Company)
	if company == "" {
		return View{}, &NormalizationError{Field: "company"}
	}

	normCompany := companySuffixRe.ReplaceAllString(folder.String(company), "")
	normCompany = strings.TrimSpace(normCompany)

	city, region, country := parseLocation(rec.Location)

	return View{
		Title:        folder.String(title),
		DisplayTitle: title,

		Company:        normCompany,
		CompanySlug:    slug.Make(normCompany),
		CompanyDisplay: company,
		CompanyDomain:  strings.ToLower(strings.TrimSpace(rec.CompanyDomain)),

		City:    city,
		Region:  region,
		Country: country,

		DescriptionSnippet: descriptionSnippet(rec.Description),

		Comp: compBucket(rec.Compensation),
	}, nil
}

// CompanySlug derives the canonical identity key for a raw company name,
// using the same folding and suffix stripping as Normalize. Read paths use
// it to filter by company without going through a full record.
func CompanySlug(raw string) string {
	name := collapse(raw)
	if name == "" {
		return ""
	}
	name = strings.TrimSpace(companySuffixRe.ReplaceAllString(folder.String(name), ""))
	return slug.Make(name)
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// parseLocation splits a free-form location into (city, region, country).
// Missing components stay empty strings: they are identity components, not
// errors. Fully remote or blank locations map to the all-empty identity.
func parseLocation(raw string) (city, region, country string) {
	loc := folder.String(collapse(raw))
	switch loc {
	case "", "remote", "work from home", "wfh", "anywhere":
		return "", "", ""
	}

	parts := strings.Split(loc, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch len(parts) {
	case 1:
		return parts[0], "", ""
	case 2:
		return parts[0], parts[1], ""
	default:
		return parts[0], parts[1], strings.Join(parts[2:], " ")
	}
}

// descriptionSnippet extracts a bounded prefix of the cleaned description,
// breaking at sentence boundaries where possible.
func descriptionSnippet(description string) string {
	clean := collapse(htmlTagRe.ReplaceAllString(description, " "))
	if clean == "" {
		return ""
	}
	clean = folder.String(clean)
	if len(clean) <= snippetMaxLen {
		return clean
	}

	var snippet strings.Builder
	for _, sentence := range sentenceEndRe.Split(clean, -1) {
		if snippet.Len()+len(sentence)+1 > snippetMaxLen {
			break
		}
		snippet.WriteString(sentence)
		snippet.WriteString(".")
	}
	if snippet.Len() == 0 {
		// Hard cut may land mid-rune; back up to the boundary.
		cut := snippetMaxLen
		for cut > 0 && !utf8.RuneStart(clean[cut]) {
			cut--
		}
		return strings.TrimSpace(clean[:cut])
	}
	return strings.TrimSpace(snippet.String())
}

func compBucket(comp *CompRange) CompBucket {
	if comp == nil {
		return CompBucket{}
	}
	currency := strings.ToUpper(strings.TrimSpace(comp.Currency))
	if currency == "" {
		currency = "USD"
	}
	return CompBucket{
		Stated:   true,
		Currency: currency,
		Min:      int64(comp.Min),
		Max:      int64(comp.Max),
		Interval: folder.String(strings.TrimSpace(comp.Interval)),
	}
}
