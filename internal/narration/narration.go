// Package narration announces storefront UI events through coordinated
// speech. It has its own on/off switch, independent of voice commands.
package narration

import (
	"context"
	"strings"
	"sync"

	"github.com/hammamikhairi/voicecart/internal/logger"
	"github.com/hammamikhairi/voicecart/internal/metrics"
	"github.com/hammamikhairi/voicecart/internal/speech"
)

// DefaultVolume keeps narration a little quieter than command replies.
const DefaultVolume = 0.8

// Event names the kind of UI event being announced.
type Event string

const (
	EventClick          Event = "click"
	EventNavigation     Event = "navigation"
	EventAddToCart      Event = "add_to_cart"
	EventRemoveFromCart Event = "remove_from_cart"
	EventSearch         Event = "search"
	EventPageLoad       Event = "page_load"
	EventFormSubmit     Event = "form_submit"
	EventQuantity       Event = "quantity_change"
	EventCheckout       Event = "checkout"
	EventPayment        Event = "payment"
	EventOrderComplete  Event = "order_complete"
	EventError          Event = "error"
	EventSuccess        Event = "success"
	EventWelcome        Event = "welcome"
	EventToggle         Event = "toggle"
)

// Option configures the Service.
type Option func(*Service)

// WithVolume sets the narration volume.
func WithVolume(v float64) Option {
	return func(s *Service) { s.volume = v }
}

// WithEnabled sets the initial state. Narration starts disabled.
func WithEnabled(on bool) Option {
	return func(s *Service) { s.enabled = on }
}

// Service is the narration service. Every announcement is best-effort:
// it never blocks or fails the UI action that triggered it.
type Service struct {
	coord  *speech.Coordinator
	log    *logger.Logger
	volume float64

	mu       sync.Mutex
	enabled  bool
	welcomed bool
}

// New creates a narration service speaking through coord.
func New(coord *speech.Coordinator, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		coord:  coord,
		log:    log,
		volume: DefaultVolume,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available reports whether speech synthesis exists. Without it every
// announcement silently does nothing.
func (s *Service) Available() bool { return s.coord.Output().Available() }

// Enabled reports whether announcements are on.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled switches announcements without a spoken confirmation.
func (s *Service) SetEnabled(on bool) {
	s.mu.Lock()
	s.enabled = on
	s.mu.Unlock()
	s.log.Debug("narration: enabled=%v", on)
}

// Toggle flips narration and confirms the new state aloud. The
// confirmation is spoken in both directions. It returns the new state.
func (s *Service) Toggle(ctx context.Context) bool {
	s.mu.Lock()
	s.enabled = !s.enabled
	on := s.enabled
	s.mu.Unlock()

	line := speech.LineReadAloudOff()
	if on {
		line = speech.LineReadAloudOn()
	}
	s.log.Info("narration: %s", line)
	s.speak(ctx, EventToggle, line)
	return on
}

// Announce speaks text for event when narration is enabled. It reports
// whether anything was queued.
func (s *Service) Announce(ctx context.Context, event Event, text string) bool {
	if strings.TrimSpace(text) == "" || !s.Enabled() {
		return false
	}
	return s.speak(ctx, event, text)
}

func (s *Service) speak(ctx context.Context, event Event, text string) bool {
	if !s.Available() {
		return false
	}
	metrics.Narrations.WithLabelValues(string(event)).Inc()
	s.coord.Speak(ctx, text, speech.SpeakOptions{
		Volume: s.volume,
		OnError: func(err error) {
			s.log.Debug("narration: %s failed: %v", event, err)
		},
	})
	return true
}

// ── Event vocabulary ─────────────────────────────────────────────

// Welcome greets the user once per process. It is not consumed while
// narration is disabled.
func (s *Service) Welcome(ctx context.Context) bool {
	s.mu.Lock()
	if s.welcomed || !s.enabled {
		s.mu.Unlock()
		return false
	}
	s.welcomed = true
	s.mu.Unlock()
	return s.Announce(ctx, EventWelcome, speech.LineNarrationWelcome())
}

// Click announces a click on the named element.
func (s *Service) Click(ctx context.Context, element string) bool {
	return s.Announce(ctx, EventClick, describe(element, speech.LineClicked))
}

// Navigation announces a move to page.
func (s *Service) Navigation(ctx context.Context, page string) bool {
	return s.Announce(ctx, EventNavigation, describe(page, speech.LineNavigating))
}

// AddToCart announces that product was added to the cart.
func (s *Service) AddToCart(ctx context.Context, product string) bool {
	return s.Announce(ctx, EventAddToCart, describe(product, speech.LineAddedToCart))
}

// RemoveFromCart announces that product left the cart.
func (s *Service) RemoveFromCart(ctx context.Context, product string) bool {
	return s.Announce(ctx, EventRemoveFromCart, describe(product, speech.LineRemovedFromCart))
}

// Search announces a search for term.
func (s *Service) Search(ctx context.Context, term string) bool {
	return s.Announce(ctx, EventSearch, describe(term, speech.LineSearching))
}

// PageLoad announces that page finished loading.
func (s *Service) PageLoad(ctx context.Context, page string) bool {
	return s.Announce(ctx, EventPageLoad, describe(page, speech.LinePageLoaded))
}

// FormSubmit announces a submitted form.
func (s *Service) FormSubmit(ctx context.Context, form string) bool {
	return s.Announce(ctx, EventFormSubmit, describe(form, speech.LineFormSubmitted))
}

// QuantityChange announces a new quantity. An empty product is ignored.
func (s *Service) QuantityChange(ctx context.Context, product string, qty int) bool {
	product = strings.TrimSpace(product)
	if product == "" {
		return false
	}
	return s.Announce(ctx, EventQuantity, speech.LineQuantityChanged(product, qty))
}

// Checkout announces the checkout step.
func (s *Service) Checkout(ctx context.Context) bool {
	return s.Announce(ctx, EventCheckout, speech.LineCheckout())
}

// Payment announces the payment step.
func (s *Service) Payment(ctx context.Context) bool {
	return s.Announce(ctx, EventPayment, speech.LinePayment())
}

// OrderComplete announces a placed order.
func (s *Service) OrderComplete(ctx context.Context) bool {
	return s.Announce(ctx, EventOrderComplete, speech.LineOrderComplete())
}

// Error reads msg aloud as an error.
func (s *Service) Error(ctx context.Context, msg string) bool {
	return s.Announce(ctx, EventError, describe(msg, speech.LineError))
}

// Success reads msg aloud as a confirmation.
func (s *Service) Success(ctx context.Context, msg string) bool {
	return s.Announce(ctx, EventSuccess, describe(msg, speech.LineSuccess))
}

// describe formats a line around subject, or returns "" for an empty
// subject so nothing is announced.
func describe(subject string, line func(string) string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ""
	}
	return line(subject)
}
