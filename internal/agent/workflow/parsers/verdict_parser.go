package parsers

import (
	"bytes"
	"encoding/json"
	"regexp"
	"slices"
	"strings"

	"github.com/Chative-core-poc-v1/refineloop/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/refineloop/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 128 * 1024 // 128KB
	maxCandidates = 64         // brace objects tried in the embedded stage
	maxErrSnippet = 200        // limit logged snippet size
)

// Stage names which extraction step produced a verdict.
type Stage string

const (
	StageDirect   Stage = "direct"
	StageFenced   Stage = "fenced"
	StageEmbedded Stage = "embedded"
	StageDefault  Stage = "default"
)

var fencedRe = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// looseString accepts any JSON scalar or structure and keeps it as text.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = looseString(str)
		return nil
	}
	*s = looseString(b)
	return nil
}

// stringList accepts an array, a single string or null.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*l = stringList{}
		return nil
	case len(b) > 0 && b[0] == '[':
		var raw []looseString
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		out := make(stringList, 0, len(raw))
		for _, r := range raw {
			if s := strings.TrimSpace(string(r)); s != "" {
				out = append(out, s)
			}
		}
		*l = out
		return nil
	default:
		var s looseString
		if err := s.UnmarshalJSON(b); err != nil {
			return err
		}
		if v := strings.TrimSpace(string(s)); v != "" {
			*l = stringList{v}
		} else {
			*l = stringList{}
		}
		return nil
	}
}

type wireVerdict struct {
	Verdict  *looseString `json:"verdict"`
	Feedback looseString  `json:"feedback"`
	Evidence stringList   `json:"evidence"`
	Sources  stringList   `json:"sources"`
}

// decodeVerdict accepts only JSON objects carrying a "verdict" key.
func decodeVerdict(s string) (model.VerdictRecord, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return model.VerdictRecord{}, false
	}
	var w wireVerdict
	if err := json.Unmarshal([]byte(s), &w); err != nil || w.Verdict == nil {
		return model.VerdictRecord{}, false
	}
	rec := model.VerdictRecord{
		Verdict:  strings.TrimSpace(string(*w.Verdict)),
		Feedback: string(w.Feedback),
		Evidence: []string(w.Evidence),
		Sources:  []string(w.Sources),
	}
	if rec.Evidence == nil {
		rec.Evidence = []string{}
	}
	if rec.Sources == nil {
		rec.Sources = []string{}
	}
	return rec, true
}

// DefaultVerdict is used when no structured verdict can be recovered.
func DefaultVerdict(raw string) model.VerdictRecord {
	return model.VerdictRecord{
		Verdict:  model.VerdictNeedsRevision,
		Feedback: raw,
		Evidence: []string{},
		Sources:  []string{},
	}
}

// ParseVerdict extracts a VerdictRecord from free-form Critic output.
// It tries the whole text, then a fenced block, then the first embedded object,
// and falls back to needs_revision with the raw text as feedback. It never fails.
func ParseVerdict(content string) (rec model.VerdictRecord, stage Stage) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "verdict_parser").Msgf("panic recovered: %v", r)
			rec, stage = DefaultVerdict(content), StageDefault
		}
	}()

	text := content
	if len(text) > maxContentLen {
		logx.Warn().
			Str("component", "verdict_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(text)).
			Msg("content truncated due to size limit")
		text = text[:maxContentLen]
	}

	if rec, ok := decodeVerdict(text); ok {
		return rec, StageDirect
	}

	if m := fencedRe.FindStringSubmatch(text); m != nil {
		if rec, ok := decodeVerdict(m[1]); ok {
			return rec, StageFenced
		}
	}

	for i, obj := range braceObjects(text) {
		if i >= maxCandidates {
			break
		}
		if rec, ok := decodeVerdict(obj); ok {
			return rec, StageEmbedded
		}
	}

	logx.Warn().
		Str("component", "verdict_parser").
		Str("snippet", safeSnippet(text)).
		Msg("no structured verdict found; defaulting to needs_revision")
	return DefaultVerdict(content), StageDefault
}

// braceObjects returns balanced {...} spans in order of their opening brace,
// ignoring braces inside JSON strings. One pass over s; an unclosed brace does
// not hide objects that follow it.
func braceObjects(s string) []string {
	type span struct{ start, end int }
	var (
		open     []int
		spans    []span
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			// strings only count inside an object; prose quotes are ignored
			inString = len(open) > 0
		case '{':
			open = append(open, i)
		case '}':
			if n := len(open); n > 0 {
				spans = append(spans, span{open[n-1], i})
				open = open[:n-1]
			}
		}
	}

	slices.SortFunc(spans, func(a, b span) int { return a.start - b.start })
	if len(spans) > maxCandidates {
		spans = spans[:maxCandidates]
	}
	out := make([]string, 0, len(spans))
	for _, sp := range spans {
		out = append(out, s[sp.start:sp.end+1])
	}
	return out
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
