package broker

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Supported lists the canonical broker identifiers, in display order.
var Supported = []string{
	"alpaca",
	"bbae",
	"chase",
	"dspac",
	"fennel",
	"fidelity",
	"firstrade",
	"paper",
	"public",
	"robinhood",
	"schwab",
	"sofi",
	"tastytrade",
	"tornado",
	"tradier",
	"vanguard",
	"webull",
	"wellsfargo",
}

// Day1 is the set of brokers that allow trading on the day an account is
// opened.
var Day1 = []string{
	"bbae",
	"chase",
	"dspac",
	"fennel",
	"firstrade",
	"public",
	"schwab",
	"sofi",
	"tastytrade",
	"tradier",
	"webull",
}

var aliases = map[string]string{
	"bb":    "bbae",
	"ds":    "dspac",
	"fid":   "fidelity",
	"fido":  "fidelity",
	"ft":    "firstrade",
	"rh":    "robinhood",
	"tasty": "tastytrade",
	"vg":    "vanguard",
	"wb":    "webull",
	"wf":    "wellsfargo",
}

// Resolve maps a broker shorthand to its canonical identifier. Shorthands
// match case-insensitively; any other input is returned unchanged.
func Resolve(name string) string {
	if canonical, ok := aliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return canonical
	}
	return name
}

// Key is the case-folded canonical form used for set membership.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(Resolve(name)))
}

// ResolveAll resolves every name in names.
func ResolveAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = Resolve(n)
	}
	return out
}

// IsSupported reports whether name resolves to a canonical identifier.
func IsSupported(name string) bool {
	n := Key(name)
	for _, s := range Supported {
		if s == n {
			return true
		}
	}
	return false
}

// DisplayName capitalises a broker identifier for user-facing messages,
// e.g. "robinhood" -> "Robinhood". A Caser is stateful, so one is built per
// call.
func DisplayName(name string) string {
	return cases.Title(language.Und).String(name)
}
