// Package cleaner classifies keywords into removal categories with pattern
// rules and filters tables by those categories. Detection results are plain
// values; nothing is cached on the Engine between calls.
package cleaner

import (
	"regexp"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/keyword-cli/internal/model"
)

// Category is a removal category.
type Category string

const (
	CategoryBrand         Category = "brand"
	CategoryInternational Category = "international"
	CategoryUnrelated     Category = "unrelated"
	CategoryPhone         Category = "phone_numbers"
	CategoryJunk          Category = "junk"
)

// AllCategories lists every category in reporting order.
var AllCategories = []Category{
	CategoryBrand, CategoryInternational, CategoryUnrelated, CategoryPhone, CategoryJunk,
}

// Set is a set of keyword values.
type Set map[string]struct{}

// Has reports membership.
func (s Set) Has(keyword string) bool {
	_, ok := s[keyword]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Categories holds the membership set of each category. A keyword may be
// in more than one.
type Categories map[Category]Set

// Flags selects which categories Filter removes.
type Flags map[Category]bool

// AllFlags enables every category.
func AllFlags() Flags {
	f := make(Flags, len(AllCategories))
	for _, c := range AllCategories {
		f[c] = true
	}
	return f
}

// Options carries the per-run inputs to detection.
type Options struct {
	CompetitorNames []string
	TargetCountry   string
	Industry        string
}

// Engine applies compiled Rules. It is safe for concurrent use.
type Engine struct {
	brands          []string
	shortBrands     map[string]bool
	shortLen        int
	country         []*regexp.Regexp
	currency        []*regexp.Regexp
	targets         map[string][]*regexp.Regexp
	unrelated       map[string][]*regexp.Regexp
	excludedProduct []*regexp.Regexp
}

// New compiles rules into an Engine.
func New(rules Rules) (*Engine, error) {
	e := &Engine{
		shortBrands: make(map[string]bool, len(rules.ShortBrands)),
		shortLen:    rules.ShortTermLength,
		targets:     make(map[string][]*regexp.Regexp, len(rules.TargetCountries)),
		unrelated:   make(map[string][]*regexp.Regexp, len(rules.Unrelated)),
	}
	for _, b := range rules.Brands {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
			e.brands = append(e.brands, b)
		}
	}
	for _, b := range rules.ShortBrands {
		e.shortBrands[strings.ToLower(strings.TrimSpace(b))] = true
	}

	var err error
	if e.country, err = compileAll(rules.CountryPatterns); err != nil {
		return nil, err
	}
	if e.currency, err = compileAll(rules.CurrencyPatterns); err != nil {
		return nil, err
	}
	if e.excludedProduct, err = compileAll(rules.ExcludedProducts); err != nil {
		return nil, err
	}
	for k, patterns := range rules.TargetCountries {
		if e.targets[normalizeKey(k)], err = compileAll(patterns); err != nil {
			return nil, err
		}
	}
	for k, patterns := range rules.Unrelated {
		if e.unrelated[normalizeKey(k)], err = compileAll(patterns); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Default returns an Engine over the bundled rules.
func Default() *Engine {
	e, err := New(DefaultRules())
	if err != nil {
		panic(eris.Wrap(err, "cleaner: bundled rules"))
	}
	return e
}

// Detect runs every detector over the table.
func (e *Engine) Detect(t *model.Table, opts Options) Categories {
	return Categories{
		CategoryBrand:         e.DetectBrand(t, opts.CompetitorNames),
		CategoryInternational: e.DetectInternational(t, opts.TargetCountry),
		CategoryUnrelated:     e.DetectUnrelated(t, opts.Industry),
		CategoryPhone:         e.DetectPhoneNumbers(t),
		CategoryJunk:          e.DetectJunk(t),
	}
}

// DetectBrand flags keywords mentioning a curated brand or one of the
// caller's competitor names. Short terms must appear as a whole word.
func (e *Engine) DetectBrand(t *model.Table, competitorNames []string) Set {
	var bounded []string
	var substr []string
	seen := make(map[string]bool)
	for _, term := range append(lowerAll(competitorNames), e.brands...) {
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		if e.shortBrands[term] || len([]rune(term)) <= e.shortLen {
			bounded = append(bounded, regexp.QuoteMeta(term))
		} else {
			substr = append(substr, term)
		}
	}

	var boundedRE *regexp.Regexp
	if len(bounded) > 0 {
		boundedRE = regexp.MustCompile(`\b(?:` + strings.Join(bounded, "|") + `)\b`)
	}

	return collect(t, func(kw string) bool {
		lower := strings.ToLower(kw)
		if boundedRE != nil && boundedRE.MatchString(lower) {
			return true
		}
		for _, term := range substr {
			if strings.Contains(lower, term) {
				return true
			}
		}
		return false
	})
}

// DetectInternational flags currency conversions, and country mentions
// that do not also mention the target country.
func (e *Engine) DetectInternational(t *model.Table, targetCountry string) Set {
	target := e.targetPatterns(targetCountry)
	return collect(t, func(kw string) bool {
		lower := strings.ToLower(kw)
		if anyMatch(e.currency, lower) {
			return true
		}
		return anyMatch(e.country, lower) && !anyMatch(target, lower)
	})
}

func (e *Engine) targetPatterns(code string) []*regexp.Regexp {
	key := normalizeKey(code)
	if key == "" {
		return nil
	}
	if p, ok := e.targets[key]; ok {
		return p
	}
	return []*regexp.Regexp{regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(strings.TrimSpace(code))) + `\b`)}
}

// DetectUnrelated flags keywords hitting the industry's deny-list. An
// unknown industry has no deny-list.
func (e *Engine) DetectUnrelated(t *model.Table, industry string) Set {
	patterns := e.unrelated[normalizeKey(industry)]
	if len(patterns) == 0 {
		return Set{}
	}
	return collect(t, func(kw string) bool {
		return anyMatch(patterns, strings.ToLower(kw))
	})
}

var (
	phoneDigits      = regexp.MustCompile(`^\d+$`)
	phonePrefixWord  = regexp.MustCompile(`^(1300|0800|0508|0064)\s+\w+`)
	phoneContext     = regexp.MustCompile(`\b(phone|number|code|call|contact)\b`)
	phoneContextHead = regexp.MustCompile(`^(1300|0800|0508|0\d{3}|\+?\d{2,4})`)
	phoneLongRun     = regexp.MustCompile(`\d{7,}`)
	phoneCompact     = regexp.MustCompile(`^(1300|0800|0\d)\d{6,}$`)
	phoneDialPrefix  = regexp.MustCompile(`^(\+|00)\d{2,4}\s+\d`)
)

// DetectPhoneNumbers flags bare numbers and phone-number searches.
func (e *Engine) DetectPhoneNumbers(t *model.Table) Set {
	return collect(t, isPhone)
}

func isPhone(kw string) bool {
	s := strings.TrimSpace(kw)
	switch {
	case phoneDigits.MatchString(s):
		return true
	case phonePrefixWord.MatchString(s):
		return true
	case phoneContext.MatchString(strings.ToLower(s)) &&
		(phoneContextHead.MatchString(s) || phoneLongRun.MatchString(s)):
		return true
	case phoneCompact.MatchString(s):
		return true
	case phoneCompact.MatchString(strings.ReplaceAll(s, " ", "")):
		return true
	case phoneDialPrefix.MatchString(s):
		return true
	}
	return false
}

var (
	junkURLPrefix  = regexp.MustCompile(`^(www\.|https?://)`)
	junkBareDomain = regexp.MustCompile(`^(www|co\.nz|com\.au|\.nz|\.com|\.au)$`)
	junkTLDSuffix  = regexp.MustCompile(`\.(co\.nz|com\.au|com|net|org|nz|au)$`)
	junkPrice      = regexp.MustCompile(`^\$?\d+(\.\d{2})?\s*(nzd|usd|aud|dollars?)?$`)
	junkDollar     = regexp.MustCompile(`^\$\s*\d+`)
)

// DetectJunk flags URLs, domain fragments, out-of-scope niche products and
// bare prices.
func (e *Engine) DetectJunk(t *model.Table) Set {
	return collect(t, func(kw string) bool {
		s := strings.TrimSpace(kw)
		lower := strings.ToLower(s)
		switch {
		case junkURLPrefix.MatchString(lower),
			junkBareDomain.MatchString(lower),
			strings.Count(s, ".") >= 2,
			junkTLDSuffix.MatchString(lower),
			anyMatch(e.excludedProduct, lower),
			junkPrice.MatchString(lower),
			junkDollar.MatchString(s):
			return true
		}
		return false
	})
}

// Summary reports one cleaning pass.
type Summary struct {
	Counts  map[Category]int `json:"counts"`
	Initial int              `json:"initial"`
	Final   int              `json:"final"`
	Log     model.Log        `json:"log"`
}

// Removed returns how many rows the pass dropped.
func (s Summary) Removed() int { return s.Initial - s.Final }

// Filter drops every row whose keyword is in an enabled category. A nil
// flags value enables all categories.
func Filter(t *model.Table, cats Categories, flags Flags) (*model.Table, Summary) {
	if flags == nil {
		flags = AllFlags()
	}

	sum := Summary{Counts: make(map[Category]int, len(AllCategories)), Initial: t.Len()}
	remove := Set{}
	for _, c := range AllCategories {
		set := cats[c]
		sum.Counts[c] = len(set)
		sum.Log.Infof("Detected %d %s keywords", len(set), strings.ReplaceAll(string(c), "_", " "))
		if !flags[c] {
			continue
		}
		for k := range set {
			remove[k] = struct{}{}
		}
	}

	out := t.Filter(func(r *model.KeywordRow) bool { return !remove.Has(r.Keyword) })
	sum.Final = out.Len()
	sum.Log.Infof("Filtered dataset: %d -> %d keywords (%d removed)", sum.Initial, sum.Final, sum.Removed())
	return out, sum
}

// Removed returns, per non-empty category, the rows of t in that category.
func Removed(t *model.Table, cats Categories) map[Category]*model.Table {
	out := make(map[Category]*model.Table)
	for _, c := range AllCategories {
		set := cats[c]
		if len(set) == 0 {
			continue
		}
		out[c] = t.Filter(func(r *model.KeywordRow) bool { return set.Has(r.Keyword) })
	}
	return out
}

func collect(t *model.Table, match func(string) bool) Set {
	out := Set{}
	for _, r := range t.Rows {
		if match(r.Keyword) {
			out[r.Keyword] = struct{}{}
		}
	}
	return out
}

func anyMatch(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}
