package command

import (
	"strings"
	"sync"
	"time"

	"github.com/hammamikhairi/voicecart/internal/domain"
	"github.com/hammamikhairi/voicecart/internal/logger"
	"github.com/hammamikhairi/voicecart/internal/metrics"
)

// DefaultDedupWindow is how long an identical command is ignored.
const DefaultDedupWindow = 1000 * time.Millisecond

// Interpreter maps transcripts to exactly one CommandMatch.
type Interpreter struct {
	log         *logger.Logger
	dedupWindow time.Duration
	now         func() time.Time

	categories []compiledCategory
	prefixes   []string
	groups     map[string][]int // token -> confusion group ids

	mu     sync.Mutex
	last   string
	lastAt time.Time
}

type compiledCategory struct {
	Category
	phrases []string   // normalized
	words   [][]string // phrases split into words
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithDedupWindow sets the repeated-command window.
func WithDedupWindow(d time.Duration) Option {
	return func(i *Interpreter) { i.dedupWindow = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Interpreter) { i.now = now }
}

// NewInterpreter compiles a validated table.
func NewInterpreter(t *Table, log *logger.Logger, opts ...Option) (*Interpreter, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	i := &Interpreter{
		log:         log,
		dedupWindow: DefaultDedupWindow,
		now:         time.Now,
		groups:      make(map[string][]int),
	}
	for _, opt := range opts {
		opt(i)
	}

	for _, p := range t.SearchPrefixes {
		if n := Normalize(p); n != "" {
			i.prefixes = append(i.prefixes, n)
		}
	}

	gid := 0
	for canonical, variants := range t.Confusions {
		for _, tok := range append([]string{canonical}, variants...) {
			tok = Normalize(tok)
			if tok == "" {
				continue
			}
			i.groups[tok] = append(i.groups[tok], gid)
		}
		gid++
	}

	for _, c := range t.Categories {
		cc := compiledCategory{Category: c}
		for _, p := range c.Phrases {
			n := Normalize(p)
			if n == "" {
				continue
			}
			cc.phrases = append(cc.phrases, n)
			cc.words = append(cc.words, strings.Fields(n))
		}
		i.categories = append(i.categories, cc)
	}

	log.Debug("command: %d categories, %d confusion tokens", len(i.categories), len(i.groups))
	return i, nil
}

// Normalize lowercases s, drops everything outside a-z and whitespace, and
// collapses runs of whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Match interprets a transcript. It never drops anything and always
// returns exactly one match; Unknown when nothing fits.
func (i *Interpreter) Match(transcript string) domain.CommandMatch {
	norm := Normalize(transcript)
	if norm == "" {
		return domain.CommandMatch{Action: domain.Unknown(strings.TrimSpace(transcript))}
	}
	tokens := strings.Fields(norm)

	for _, c := range i.categories {
		pattern, method := i.matchCategory(c, norm, tokens)
		if method == domain.MatchNone {
			continue
		}
		term := ""
		if c.Action == actionSearch {
			term = i.extractTerm(norm)
		}
		i.log.Debug("command: %q -> %s via %s %q", norm, c.Name, method, pattern)
		return domain.CommandMatch{
			Action:         c.actionFor(term),
			Category:       c.Name,
			MatchedPattern: pattern,
			Method:         method,
		}
	}

	i.log.Debug("command: %q matched nothing", norm)
	return domain.CommandMatch{Action: domain.Unknown(norm)}
}

// Interpret matches a transcript with repeated-command suppression. ok is
// false when the same normalized command was seen within the window.
func (i *Interpreter) Interpret(transcript string, confidence float64) (domain.CommandMatch, bool) {
	norm := Normalize(transcript)
	now := i.now()

	i.mu.Lock()
	if norm != "" && norm == i.last && now.Sub(i.lastAt) < i.dedupWindow {
		i.mu.Unlock()
		metrics.CommandsDropped.Inc()
		i.log.Debug("command: dropping repeat %q", norm)
		return domain.CommandMatch{}, false
	}
	i.last, i.lastAt = norm, now
	i.mu.Unlock()

	m := i.Match(transcript)
	m.ConfidenceHint = confidence

	label := m.Category
	if label == "" {
		label = "unknown"
	}
	metrics.Commands.WithLabelValues(label).Inc()
	return m, true
}

// matchCategory runs both stages for one category: substring phrases,
// then word-level confusion groups.
func (i *Interpreter) matchCategory(c compiledCategory, norm string, tokens []string) (string, domain.MatchMethod) {
	for _, p := range c.phrases {
		if strings.Contains(norm, p) {
			return p, domain.MatchPhrase
		}
	}
	for idx, words := range c.words {
		if i.containsSimilarRun(tokens, words) {
			return c.phrases[idx], domain.MatchPhonetic
		}
	}
	return "", domain.MatchNone
}

// containsSimilarRun reports whether tokens holds len(words) consecutive
// tokens, each similar to the word at the same position.
func (i *Interpreter) containsSimilarRun(tokens, words []string) bool {
	if len(words) == 0 || len(words) > len(tokens) {
		return false
	}
outer:
	for start := 0; start+len(words) <= len(tokens); start++ {
		for k, w := range words {
			if !i.similar(tokens[start+k], w) {
				continue outer
			}
		}
		return true
	}
	return false
}

// similar reports whether two words are equal or share a confusion group.
func (i *Interpreter) similar(a, b string) bool {
	if a == b {
		return true
	}
	ga, gb := i.groups[a], i.groups[b]
	for _, x := range ga {
		for _, y := range gb {
			if x == y {
				return true
			}
		}
	}
	return false
}

// extractTerm strips the first matching search prefix and returns the
// trimmed remainder.
func (i *Interpreter) extractTerm(norm string) string {
	for _, p := range i.prefixes {
		if idx := strings.Index(norm, p); idx >= 0 {
			return strings.TrimSpace(norm[idx+len(p):])
		}
	}
	return ""
}
