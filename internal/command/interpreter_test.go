package command

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hammamikhairi/voicecart/internal/domain"
	"github.com/hammamikhairi/voicecart/internal/logger"
)

func newTestInterpreter(t *testing.T, opts ...Option) *Interpreter {
	t.Helper()
	table, err := DefaultTable()
	if err != nil {
		t.Fatalf("DefaultTable: %v", err)
	}
	in, err := NewInterpreter(table, logger.New(logger.LevelOff, nil), opts...)
	if err != nil {
		t.Fatalf("NewInterpreter: %v", err)
	}
	return in
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Show   CART! ", "show cart"},
		{"search for vitamin-C", "search for vitaminc"},
		{"123", ""},
		{"go\thome\n", "go home"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMatch(t *testing.T) {
	in := newTestInterpreter(t)

	tests := []struct {
		input    string
		wantKind domain.ActionKind
		wantCat  string
		wantPath string
		wantTerm string
	}{
		// Greeting
		{"hello", domain.ActionRespond, "test", "", ""},
		{"Hello there!", domain.ActionRespond, "test", "", ""},
		{"helo", domain.ActionRespond, "test", "", ""},

		// Search is checked before cart.
		{"search for vitamins", domain.ActionSearch, "search", "", "vitamins"},
		{"search for cart polish", domain.ActionSearch, "search", "", "cart polish"},
		{"find protein powder", domain.ActionSearch, "search", "", "protein powder"},
		{"look for fish oil", domain.ActionSearch, "search", "", "fish oil"},
		{"serch for honey", domain.ActionSearch, "search", "", "honey"},

		// Cart, including catalogued mis-transcriptions.
		{"show cart", domain.ActionNavigate, "cart", "/cart", ""},
		{"motu capet", domain.ActionNavigate, "cart", "/cart", ""},
		{"open kart", domain.ActionNavigate, "cart", "/cart", ""},
		{"shoe card", domain.ActionNavigate, "cart", "/cart", ""},
		{"cot", domain.ActionNavigate, "cart", "/cart", ""},

		// Navigation
		{"go home", domain.ActionNavigate, "home", "/", ""},
		{"health category", domain.ActionNavigate, "health", "/category/health", ""},
		{"go to the health category", domain.ActionNavigate, "health", "/category/health", ""},
		{"nutrition", domain.ActionNavigate, "nutrition", "/category/nutrition", ""},
		{"vitamins", domain.ActionNavigate, "nutrition", "/category/nutrition", ""},
		{"checkout", domain.ActionNavigate, "checkout", "/checkout", ""},
		{"I want to check out", domain.ActionNavigate, "checkout", "/checkout", ""},
		{"go back", domain.ActionNavigate, "back", domain.PathBack, ""},

		// Help
		{"what can i say", domain.ActionRespond, "help", "", ""},

		// Unknown
		{"department", domain.ActionUnknown, "", "", ""},
		{"banana", domain.ActionUnknown, "", "", ""},
		{"", domain.ActionUnknown, "", "", ""},
		{"!!!", domain.ActionUnknown, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			m := in.Match(tt.input)
			if m.Action.Kind != tt.wantKind {
				t.Fatalf("Match(%q) kind = %v, want %v (%s)", tt.input, m.Action.Kind, tt.wantKind, m.Action)
			}
			if m.Category != tt.wantCat {
				t.Errorf("category = %q, want %q", m.Category, tt.wantCat)
			}
			if m.Action.Path != tt.wantPath {
				t.Errorf("path = %q, want %q", m.Action.Path, tt.wantPath)
			}
			if m.Action.Term != tt.wantTerm {
				t.Errorf("term = %q, want %q", m.Action.Term, tt.wantTerm)
			}
		})
	}
}

func TestMatchMethod(t *testing.T) {
	in := newTestInterpreter(t)

	if m := in.Match("show cart"); m.Method != domain.MatchPhrase || m.MatchedPattern != "show cart" {
		t.Errorf("show cart: method %v pattern %q", m.Method, m.MatchedPattern)
	}
	if m := in.Match("so part"); m.Method != domain.MatchPhonetic {
		t.Errorf("so part: method %v, want phonetic", m.Method)
	}
	if m := in.Match("banana"); m.Method != domain.MatchNone || m.MatchedPattern != "" {
		t.Errorf("banana: method %v pattern %q", m.Method, m.MatchedPattern)
	}
}

func TestSearchEmptyTermAsksAgain(t *testing.T) {
	in := newTestInterpreter(t)

	m := in.Match("search for")
	if m.Action.Kind != domain.ActionRespond {
		t.Fatalf("kind = %v, want respond", m.Action.Kind)
	}
	if m.Action.Text != "What would you like to search for?" {
		t.Errorf("text = %q", m.Action.Text)
	}
}

func TestSearchConfirmation(t *testing.T) {
	in := newTestInterpreter(t)

	m := in.Match("search for vitamins")
	if m.Action.Confirmation != "Searching for vitamins" {
		t.Errorf("confirmation = %q", m.Action.Confirmation)
	}
}

func TestMatchAlwaysReturnsOneMatch(t *testing.T) {
	in := newTestInterpreter(t)

	inputs := []string{"", " ", "x", "cart home help", "search", "back to the cart", "ümlaut", "go go go"}
	for _, s := range inputs {
		m := in.Match(s)
		if m.Action.Kind == domain.ActionUnknown && m.Category != "" {
			t.Errorf("Match(%q): unknown action with category %q", s, m.Category)
		}
		if m.Action.Kind != domain.ActionUnknown && m.Category == "" {
			t.Errorf("Match(%q): %v without category", s, m.Action)
		}
	}
}

func TestInterpretDropsRepeats(t *testing.T) {
	now := time.Unix(1000, 0)
	in := newTestInterpreter(t, WithClock(func() time.Time { return now }))

	if _, ok := in.Interpret("show cart", 0.9); !ok {
		t.Fatal("first command dropped")
	}

	now = now.Add(500 * time.Millisecond)
	if _, ok := in.Interpret("Show cart!", 0.9); ok {
		t.Fatal("repeat inside window was not dropped")
	}

	now = now.Add(1100 * time.Millisecond)
	m, ok := in.Interpret("show cart", 0.75)
	if !ok {
		t.Fatal("repeat outside window was dropped")
	}
	if m.ConfidenceHint != 0.75 {
		t.Errorf("confidence = %v, want 0.75", m.ConfidenceHint)
	}

	if _, ok := in.Interpret("go home", 0.9); !ok {
		t.Fatal("different command dropped")
	}
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commands.yaml")
	data := []byte(`
search_prefixes: [search for]
confusions:
  deals: [deals, teals, dells]
categories:
  - name: deals
    action: navigate
    path: /deals
    confirmation: Opening deals
    phrases: [deals, offers]
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	in, err := NewInterpreter(table, logger.New(logger.LevelOff, nil))
	if err != nil {
		t.Fatal(err)
	}

	if m := in.Match("show me the dells"); m.Action.Path != "/deals" {
		t.Errorf("custom table match = %v", m.Action)
	}
	if m := in.Match("show cart"); m.Action.Kind != domain.ActionUnknown {
		t.Errorf("built-in category leaked into custom table: %v", m.Action)
	}
}

func TestParseTableValidation(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no categories", `categories: []`},
		{"no phrases", "categories:\n  - name: a\n    action: respond\n    text: hi\n"},
		{"navigate without path", "categories:\n  - name: a\n    action: navigate\n    phrases: [a]\n"},
		{"unknown action", "categories:\n  - name: a\n    action: dance\n    phrases: [a]\n"},
		{"search without prefixes", "categories:\n  - name: a\n    action: search\n    phrases: [a]\n"},
		{"duplicate", "categories:\n  - name: a\n    action: respond\n    text: x\n    phrases: [a]\n  - name: a\n    action: respond\n    text: y\n    phrases: [b]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTable([]byte(tt.data)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadTableEmptyPathUsesDefault(t *testing.T) {
	table, err := LoadTable("")
	if err != nil {
		t.Fatal(err)
	}
	if table.Categories[0].Name != "test" || table.Categories[1].Name != "search" {
		t.Errorf("unexpected priority order: %s, %s", table.Categories[0].Name, table.Categories[1].Name)
	}
}
