package classifier

import (
	"regexp"
	"strings"
)

// Decision is the routing outcome for one query.
type Decision struct {
	UseMemory bool
	UseSearch bool
}

var recallPhrases = []string{
	"remember", "memory", "earlier", "before", "we discussed", "we talked", "we spoke",
	"topics we", "what did we", "past conversation", "previous", "last time",
	"you told me", "i told you", "mentioned", "our conversation",
}

var currencyPhrases = []string{
	"news", "latest", "today", "current", "recent", "now", "update", "happening",
	"yesterday", "last night", "this week", "this month", "this year",
	"match", "game", "score", "result", "won", "lost", "cricket", "football", "sports",
	"weather", "stock", "price", "election", "breaking", "announced", "released",
}

var (
	recallRe   = phraseRegexp(recallPhrases)
	currencyRe = phraseRegexp(currencyPhrases)
	yearRe     = regexp.MustCompile(`\b20\d{2}\b`)
)

// phraseRegexp matches any phrase on word boundaries, case-insensitively,
// with an optional plural suffix ("prices", "matches").
func phraseRegexp(phrases []string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)(?:es|s)?\b`)
}

// Classify decides whether a query recalls past conversation or needs fresh information.
// Recall intent wins: a query that matches both never triggers search.
func Classify(query string) Decision {
	q := strings.ToLower(query)
	useMemory := recallRe.MatchString(q)
	needsCurrent := currencyRe.MatchString(q) || yearRe.MatchString(q)
	return Decision{
		UseMemory: useMemory,
		UseSearch: needsCurrent && !useMemory,
	}
}
