package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/hammamikhairi/voicecart/internal/domain"
	"github.com/hammamikhairi/voicecart/internal/history"
	"github.com/hammamikhairi/voicecart/internal/logger"
	"github.com/hammamikhairi/voicecart/internal/narration"
	"github.com/hammamikhairi/voicecart/internal/speech"
	"github.com/hammamikhairi/voicecart/internal/storefront"
)

// commander runs a typed voice command.
type commander interface {
	Submit(ctx context.Context, text string) (domain.CommandMatch, bool)
}

// printer is the part of display.UI the shell writes to.
type printer interface {
	PrintChat(text string)
	PrintHint(text string)
	PrintUrgent(text string)
}

// historyLimit is how many commands /history lists.
const historyLimit = 5

// shell turns typed lines into voice commands or simulated storefront UI
// events. Slash commands stand in for the clicks and form submissions a
// real page would narrate.
type shell struct {
	cmds      commander
	narration *narration.Service
	router    *storefront.Router
	history   history.Store
	ui        printer
	log       *logger.Logger
}

// run reads lines until the context ends, the input closes or the user
// quits.
func (s *shell) run(ctx context.Context, lines <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !s.handle(ctx, line) {
				return
			}
		}
	}
}

// handle processes one line. It returns false when the user asked to quit.
func (s *shell) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}

	switch strings.ToLower(line) {
	case "quit", "exit", "/quit", "/exit":
		return false
	}

	if !strings.HasPrefix(line, "/") {
		s.submit(ctx, line)
		return true
	}

	// Page events navigate first so the specific announcement supersedes
	// the generic navigation one.
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	s.log.Debug("shell: /%s %q", name, arg)

	switch strings.ToLower(name) {
	case "help":
		s.help()
	case "history":
		s.showHistory(ctx)
	case "go":
		if arg == "" {
			s.ui.PrintHint("usage: /go <path>")
			return true
		}
		s.router.Navigate(arg)
	case "back":
		s.router.Back()
	case "search":
		if arg == "" {
			s.ui.PrintHint("usage: /search <term>")
			return true
		}
		s.router.NavigateWithQuery(storefront.HomePath, url.Values{"search": {arg}})
		s.narration.Search(ctx, arg)
	case "click":
		s.require(arg, "/click <element>", func() { s.narration.Click(ctx, arg) })
	case "add":
		s.require(arg, "/add <product>", func() { s.narration.AddToCart(ctx, arg) })
	case "remove":
		s.require(arg, "/remove <product>", func() { s.narration.RemoveFromCart(ctx, arg) })
	case "submit":
		s.require(arg, "/submit <form>", func() { s.narration.FormSubmit(ctx, arg) })
	case "qty":
		product, qty, err := parseQuantity(arg)
		if err != nil {
			s.ui.PrintHint("usage: /qty <product> <n>")
			return true
		}
		s.narration.QuantityChange(ctx, product, qty)
	case "checkout":
		s.router.Navigate("/checkout")
		s.narration.Checkout(ctx)
	case "pay":
		s.router.Navigate("/payment")
		s.narration.Payment(ctx)
	case "order":
		s.router.Navigate("/order-success")
		s.narration.OrderComplete(ctx)
	case "error":
		s.require(arg, "/error <message>", func() {
			s.ui.PrintUrgent(arg)
			s.narration.Error(ctx, arg)
		})
	case "success":
		s.require(arg, "/success <message>", func() {
			s.ui.PrintChat(arg)
			s.narration.Success(ctx, arg)
		})
	default:
		s.ui.PrintHint(fmt.Sprintf("unknown command /%s, type /help", name))
	}
	return true
}

func (s *shell) submit(ctx context.Context, text string) {
	m, ok := s.cmds.Submit(ctx, text)
	if !ok {
		s.ui.PrintHint("(repeat ignored)")
		return
	}
	switch m.Action.Kind {
	case domain.ActionRespond:
		s.ui.PrintChat(m.Action.Text)
	case domain.ActionUnknown:
		s.ui.PrintHint(speech.LineUnknownCommand(m.Action.Raw))
	default:
		s.ui.PrintChat(m.Action.Confirmation)
	}
}

func (s *shell) require(arg, usage string, fn func()) {
	if arg == "" {
		s.ui.PrintHint("usage: " + usage)
		return
	}
	fn()
}

func (s *shell) help() {
	for _, l := range []string{
		"Say or type a command: hello, go home, show cart, search for vitamins, go back, checkout, help.",
		"F2 toggles the microphone, F3 toggles read-aloud.",
		"Simulated page events:",
		"  /go <path>  /back  /search <term>  /click <element>",
		"  /add <product>  /remove <product>  /qty <product> <n>",
		"  /submit <form>  /checkout  /pay  /order  /error <msg>  /success <msg>",
		"  /history  /quit",
	} {
		s.ui.PrintHint(l)
	}
}

func (s *shell) showHistory(ctx context.Context) {
	if s.history == nil {
		s.ui.PrintHint("history is not recorded")
		return
	}
	entries, err := s.history.Recent(ctx, historyLimit)
	if err != nil {
		s.log.Error("history: %v", err)
		s.ui.PrintUrgent("Could not load command history.")
		return
	}
	if len(entries) == 0 {
		s.ui.PrintHint("no commands yet")
		return
	}
	for _, e := range entries {
		s.ui.PrintHint(fmt.Sprintf("%s  %-10s %q (%.2f)", e.At.Format("15:04:05"), e.Category, e.Transcript, e.Confidence))
	}
}

// parseQuantity splits "<product> <n>"; the product may contain spaces.
func parseQuantity(arg string) (string, int, error) {
	i := strings.LastIndex(arg, " ")
	if i < 0 {
		return "", 0, fmt.Errorf("missing quantity in %q", arg)
	}
	qty, err := strconv.Atoi(arg[i+1:])
	if err != nil || qty < 0 {
		return "", 0, fmt.Errorf("bad quantity in %q", arg)
	}
	product := strings.TrimSpace(arg[:i])
	if product == "" {
		return "", 0, fmt.Errorf("missing product in %q", arg)
	}
	return product, qty, nil
}
