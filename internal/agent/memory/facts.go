package memory

import (
	"regexp"
	"strings"
)

const (
	maxFacts   = 3
	minFactLen = 10
	maxFactLen = 200
)

var factPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)([\w\s]+?)\s+(is|are|was|were)\s+([^.!?\n]+)`),
	regexp.MustCompile(`(?i)([\w\s]+?)\s+(has|have|had)\s+([^.!?\n]+)`),
	regexp.MustCompile(`(?i)([\w\s]+?)\s+(can|could|will|would|should|must)\s+([^.!?\n]+)`),
}

// ExtractKeyFacts pulls up to three short "X is/has/can Y" statements out of text.
func ExtractKeyFacts(text string) []string {
	facts := []string{}
	seen := map[string]bool{}
	for _, re := range factPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			fact := strings.Join(strings.Fields(m[1]+" "+m[2]+" "+m[3]), " ")
			if len(fact) <= minFactLen || len(fact) >= maxFactLen || seen[fact] {
				continue
			}
			seen[fact] = true
			facts = append(facts, fact)
			if len(facts) == maxFacts {
				return facts
			}
		}
	}
	return facts
}
