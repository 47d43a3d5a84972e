package domain

import "fmt"

// PathBack is the navigation target for "go back" (history pop).
const PathBack = "-1"

// ActionKind tags the variant held by an Action.
type ActionKind int

const (
	ActionUnknown ActionKind = iota
	ActionNavigate
	ActionSearch
	ActionRespond
)

// String returns a human-readable action kind.
func (k ActionKind) String() string {
	switch k {
	case ActionNavigate:
		return "navigate"
	case ActionSearch:
		return "search"
	case ActionRespond:
		return "respond"
	default:
		return "unknown"
	}
}

// Action is what a matched command asks the application to do. Only the
// fields of the active variant are set:
//
//	Navigate{Path}  Search{Term}  Respond{Text}  Unknown{Raw}
//
// Confirmation is the spoken acknowledgement for Navigate and Search.
type Action struct {
	Kind         ActionKind
	Path         string
	Term         string
	Text         string
	Raw          string
	Confirmation string
}

// Navigate builds a Navigate action.
func Navigate(path, confirmation string) Action {
	return Action{Kind: ActionNavigate, Path: path, Confirmation: confirmation}
}

// Search builds a Search action.
func Search(term, confirmation string) Action {
	return Action{Kind: ActionSearch, Term: term, Confirmation: confirmation}
}

// Respond builds a Respond action.
func Respond(text string) Action {
	return Action{Kind: ActionRespond, Text: text}
}

// Unknown builds an Unknown action carrying the raw transcript.
func Unknown(raw string) Action {
	return Action{Kind: ActionUnknown, Raw: raw}
}

func (a Action) String() string {
	switch a.Kind {
	case ActionNavigate:
		return fmt.Sprintf("navigate{%s}", a.Path)
	case ActionSearch:
		return fmt.Sprintf("search{%s}", a.Term)
	case ActionRespond:
		return fmt.Sprintf("respond{%s}", a.Text)
	default:
		return fmt.Sprintf("unknown{%s}", a.Raw)
	}
}

// MatchMethod records which matching stage produced a CommandMatch.
type MatchMethod int

const (
	MatchNone MatchMethod = iota
	MatchPhrase
	MatchPhonetic
)

func (m MatchMethod) String() string {
	switch m {
	case MatchPhrase:
		return "phrase"
	case MatchPhonetic:
		return "phonetic"
	default:
		return "none"
	}
}

// CommandMatch is the single result of interpreting one transcript.
type CommandMatch struct {
	Action         Action
	Category       string // empty for Unknown
	MatchedPattern string // empty for Unknown
	Method         MatchMethod
	ConfidenceHint float64 // 0 when not known
}
