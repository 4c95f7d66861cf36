// Package affiliation decides whether an author affiliation belongs to
// industry and pulls company names and contact emails out of the free-text
// affiliation strings PubMed carries.
package affiliation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	emailPattern        = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}`)
	electronicAddrLabel = regexp.MustCompile(`(?i)\belectronic address\s*:?`)
	segmentSeparators   = regexp.MustCompile(`[,;]`)
	spaceRun            = regexp.MustCompile(`\s+`)
	repeatedStops       = regexp.MustCompile(`\.(?:\s*\.)+`)
	repeatedSeps        = regexp.MustCompile(`([,;])(?:\s*[,;])+`)
)

// Classifier applies a Policy to affiliation strings. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	academic       []*regexp.Regexp
	company        []*regexp.Regexp
	requireCompany bool
}

// NewClassifier compiles the keyword lists of p.
func NewClassifier(p Policy) (*Classifier, error) {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	academic, err := compileKeywords(p.Academic)
	if err != nil {
		return nil, fmt.Errorf("academic keywords: %w", err)
	}
	company, err := compileKeywords(p.Company)
	if err != nil {
		return nil, fmt.Errorf("company keywords: %w", err)
	}
	return &Classifier{
		academic:       academic,
		company:        company,
		requireCompany: p.RequireCompanyKeyword,
	}, nil
}

// Default returns a Classifier for DefaultPolicy.
func Default() *Classifier {
	c, err := NewClassifier(DefaultPolicy())
	if err != nil {
		panic(fmt.Sprintf("affiliation: default policy: %v", err))
	}
	return c
}

// IsNonAcademic reports whether aff describes an industry affiliation.
// Academic keywords always win; after that a company keyword decides, or,
// when the policy does not require one, any remaining non-empty text.
func (c *Classifier) IsNonAcademic(aff string) bool {
	text := StripEmails(aff)
	if text == "" {
		return false
	}
	if matchAny(c.academic, text) {
		return false
	}
	if matchAny(c.company, text) {
		return true
	}
	return !c.requireCompany
}

// CompanyName returns the comma or semicolon separated segment of aff that
// names the company: the first segment hitting a company keyword, else the
// first non-empty segment. Callers should only ask for non-academic
// affiliations.
func (c *Classifier) CompanyName(aff string) string {
	text := StripEmails(aff)
	var first string
	for _, seg := range segmentSeparators.Split(text, -1) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if matchAny(c.company, seg) {
			return seg
		}
		if first == "" {
			first = seg
		}
	}
	return first
}

// FindEmail returns the first email address in text, or "".
func FindEmail(text string) string {
	return emailPattern.FindString(text)
}

// StripEmails removes email addresses and their "Electronic address:"
// labels from an affiliation and tidies the leftover punctuation.
func StripEmails(aff string) string {
	s := emailPattern.ReplaceAllString(aff, "")
	s = electronicAddrLabel.ReplaceAllString(s, "")
	s = spaceRun.ReplaceAllString(s, " ")
	s = repeatedStops.ReplaceAllString(s, ".")
	s = repeatedSeps.ReplaceAllString(s, "$1")
	if strings.Trim(s, " .,;:") == "" {
		return ""
	}
	return strings.Trim(s, " ,;")
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func compileKeywords(keywords []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(keywords))
	for _, kw := range keywords {
		re, err := keywordPattern(kw)
		if err != nil {
			return nil, fmt.Errorf("keyword %q: %w", kw, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// keywordPattern turns a policy keyword into a case-insensitive regexp.
// Word boundaries are only added next to word characters. A keyword with a
// dot must start a token, so "s.a." does not match the tail of "U.S.A.".
func keywordPattern(kw string) (*regexp.Regexp, error) {
	kw = strings.TrimSpace(kw)
	openLeft := strings.HasPrefix(kw, "*")
	openRight := strings.HasSuffix(kw, "*")
	core := strings.Trim(kw, "*")
	if core == "" {
		return nil, fmt.Errorf("empty keyword")
	}

	var b strings.Builder
	b.WriteString("(?i)")
	switch {
	case openLeft:
	case strings.Contains(core, "."):
		b.WriteString(`(?:^|[\s,;(])`)
	case isWordRune(firstRune(core)):
		b.WriteString(`\b`)
	}
	// Internal whitespace matches any run of spaces.
	words := strings.Fields(core)
	for i, w := range words {
		if i > 0 {
			b.WriteString(`\s+`)
		}
		b.WriteString(regexp.QuoteMeta(w))
	}
	if !openRight && isWordRune(lastRune(core)) {
		b.WriteString(`\b`)
	}
	return regexp.Compile(b.String())
}

// isWordRune mirrors the ASCII-only \b of package regexp.
func isWordRune(r rune) bool {
	return r < unicode.MaxASCII && (r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r))
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	r := []rune(s)
	if len(r) == 0 {
		return 0
	}
	return r[len(r)-1]
}
