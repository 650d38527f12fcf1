package cleaner

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rules is the data side of the cleaning engine. The bundled defaults are
// tuned for NZ financial services and insurance; other sectors swap them
// out with a rules file rather than code changes.
type Rules struct {
	Brands           []string            `yaml:"brands"`
	ShortBrands      []string            `yaml:"short_brands"`
	ShortTermLength  int                 `yaml:"short_term_length"`
	CountryPatterns  []string            `yaml:"country_patterns"`
	CurrencyPatterns []string            `yaml:"currency_patterns"`
	TargetCountries  map[string][]string `yaml:"target_countries"`
	Unrelated        map[string][]string `yaml:"unrelated"`
	ExcludedProducts []string            `yaml:"excluded_products"`
}

// DefaultRules returns the bundled rule data.
func DefaultRules() Rules {
	return Rules{
		Brands: []string{
			// NZ insurers
			"amp", "tower", "aa insurance", "aa", "state", "ami", "anz",
			"1cover", "southern cross", "youi", "vero", "cove", "nib",
			"asteron", "fidelity", "partners life", "aia", "cigna",
			// international insurers
			"aig", "aaa", "aami", "admiral", "aviva", "aon", "allianz", "allstate",
			"american", "ama", "amica", "argonaut", "assurant",
			"bupa", "chubb", "churchill", "direct line", "esurance", "farmers",
			"geico", "general", "gocompare", "hastings", "hiscox",
			"liberty", "lv", "medibank", "metlife", "nationwide", "progressive",
			"prudential", "qbe", "raa", "racv", "racq", "rac", "nrma",
			"saga", "suncorp", "swann", "the general", "travelers", "usaa",
			"woolworths insurance", "zurich", "budget direct", "comparethemarket", "moneysupermarket",
			// rental companies
			"hertz", "avis", "budget", "thrifty", "enterprise", "europcar",
			"sixt", "dollar", "alamo", "national", "payless", "ace",
			"apex", "alaska rental", "advantage",
			// banks
			"bnz", "westpac", "asb", "kiwibank", "tsb", "sbs",
			"american express", "amex", "visa", "mastercard",
			// KiwiSaver providers
			"simplicity", "generate", "fisher funds", "fisherfunds", "milford",
			"smartshares", "sharesies", "kernel", "booster", "kiwi wealth", "koura",
			"mercer", "generate wealth", "juno", "amanah", "aon russell",
			// AU superannuation
			"australiansuper", "australian super", "aust super",
			"australian retirement trust", "aware super", "aware",
			"hostplus", "host plus", "rest super", "rest",
			"cbus", "hesta", "unisuper", "qsuper", "sunsuper",
			"care super", "caresuper", "catholic super", "bussq",
			"child care super", "energy super", "equip super", "first super",
			"future super", "guild super", "guildsuper", "grow super",
			"spirit super", "maritime super", "media super", "telstra super",
			"essuper", "gesb", "qantas super", "virgin super",
			"crescent wealth", "cruelty free super", "ioof", "ing super",
			"asgard", "bt super", "colonial first state", "macquarie super",
			"mlc super", "onepath", "vision super", "bendigo super",
			// other financial
			"latitude", "genoapay", "afterpay", "humm", "klarna", "zip",
		},
		ShortBrands: []string{
			"aa", "ami", "anz", "aia", "bnz", "asb", "tsb", "sbs", "nib",
			"aig", "aaa", "ama", "aon", "lv", "qbe", "raa", "rac", "ace", "zip",
			"rest", "cbus", "hesta", "gesb", "ioof", "ing", "mlc",
		},
		ShortTermLength: 4,
		CountryPatterns: []string{
			`\busa?\b`, `\buk\b`, `\baustralia\b`, `\baus\b`, `\bau\b`,
			`\bcanada\b`, `\beurope\b`, `\bafrica\b`, `\basia\b`,
			`\bindia\b`, `\bchina\b`, `\bjapan\b`, `\bsouth africa\b`,
		},
		CurrencyPatterns: []string{
			`\bto\s+(nz|nzd)\b`,
			`\b(us|au|uk|usd|aud|gbp|eur)\s+to\b`,
			`(usd|aud|gbp|eur)\s+(to|into|in)\s+(nzd|nz)`,
			`(us|au)\s+(to|into|in)\s+(nz|nzd)`,
			`\d+\s+(usd|aud|gbp|eur|us|au)\s+(to|into|in)`,
			`\b(usd|aud|gbp)\b.*\bnzd\b`,
		},
		TargetCountries: map[string][]string{
			"nz": {`\bnz\b`, `\bnew zealand\b`},
			"au": {`\bau\b`, `\baus\b`, `\baustralia\b`},
			"uk": {`\buk\b`, `\bunited kingdom\b`, `\bbritain\b`},
			"us": {`\busa?\b`, `\bunited states\b`, `\bamerica\b`},
			"ca": {`\bca\b`, `\bcanada\b`},
		},
		Unrelated: map[string][]string{
			"insurance": {
				`\bretirement\b`, `\bpension\b`, `\bkiwisaver\b`,
				`\bmortgage\b`, `\bloan\b`, `\bcredit card\b`,
				`term deposit`, `fixed deposit`, `time deposit`, `\bdeposit rate`,
				`\bsavings account\b`, `\btransaction account\b`,
				`\binvestment\b`, `\bmanaged fund\b`, `\bmutual fund\b`,
				`\bportfolio\b`, `\bstocks\b`, `\bshares\b`, `\bbonds\b`,
				`\binterest rate\b`, `\bapy\b`, `\byield\b`, `\bdividend`,
			},
			"kiwisaver": {
				`\binsurance\b`, `\bcar insurance\b`, `\btravel insurance\b`,
				`\bmortgage\b`, `\bloan\b`,
			},
			"managed_funds": {
				`\binsurance\b`, `\bkiwisaver\b`, `\bmortgage\b`,
			},
		},
		ExcludedProducts: []string{
			`\b(rental|hire)\s+(car|vehicle)\s+insurance\b`,
			`\bcar\s+(rental|hire)\s+insurance\b`,
			`\bbackpacker\s+(car\s+)?insurance\b`,
		},
	}
}

// LoadRules reads a YAML rules file. Sections omitted from the file keep
// their bundled defaults.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, eris.Wrapf(err, "cleaner: read rules %s", path)
	}

	var file Rules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Rules{}, eris.Wrap(err, "cleaner: parse rules")
	}

	r := DefaultRules()
	if len(file.Brands) > 0 {
		r.Brands = file.Brands
	}
	if file.ShortBrands != nil {
		r.ShortBrands = file.ShortBrands
	}
	if file.ShortTermLength > 0 {
		r.ShortTermLength = file.ShortTermLength
	}
	if len(file.CountryPatterns) > 0 {
		r.CountryPatterns = file.CountryPatterns
	}
	if file.CurrencyPatterns != nil {
		r.CurrencyPatterns = file.CurrencyPatterns
	}
	for k, v := range file.TargetCountries {
		r.TargetCountries[normalizeKey(k)] = v
	}
	for k, v := range file.Unrelated {
		r.Unrelated[normalizeKey(k)] = v
	}
	if file.ExcludedProducts != nil {
		r.ExcludedProducts = file.ExcludedProducts
	}
	return r, nil
}

// normalizeKey turns "Managed Funds" into "managed_funds".
func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "cleaner: compile pattern %q", p)
		}
		out = append(out, re)
	}
	return out, nil
}
