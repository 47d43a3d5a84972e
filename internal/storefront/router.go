// Package storefront is the in-process stand-in for the storefront's
// client-side router. The voice layer drives it through domain.Navigator.
package storefront

import (
	"net/url"
	"strings"
	"sync"

	"github.com/hammamikhairi/voicecart/internal/domain"
	"github.com/hammamikhairi/voicecart/internal/logger"
)

// Compile-time interface check.
var _ domain.Navigator = (*Router)(nil)

// HomePath is where the router starts and where Back ends up when the
// history is empty.
const HomePath = "/"

// Location is one entry of the navigation history.
type Location struct {
	Path  string
	Query url.Values
}

// String renders the location as path?query.
func (l Location) String() string {
	if len(l.Query) == 0 {
		return l.Path
	}
	return l.Path + "?" + l.Query.Encode()
}

// ChangeFunc is called after every navigation with the new location.
type ChangeFunc func(loc Location)

// Router tracks the current location and a back stack. Safe for
// concurrent use; listeners run outside the lock.
type Router struct {
	log *logger.Logger

	mu       sync.Mutex
	current  Location
	history  []Location
	onChange ChangeFunc
}

// NewRouter creates a router positioned at the home page.
func NewRouter(log *logger.Logger) *Router {
	return &Router{
		log:     log,
		current: Location{Path: HomePath},
	}
}

// OnChange registers the navigation listener. Nil removes it.
func (r *Router) OnChange(fn ChangeFunc) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Navigate moves to path. domain.PathBack pops the history instead.
func (r *Router) Navigate(path string) {
	if path == domain.PathBack {
		r.Back()
		return
	}
	r.push(Location{Path: cleanPath(path)})
}

// NavigateWithQuery moves to path with query parameters, e.g. the search
// results view at "/?search=term".
func (r *Router) NavigateWithQuery(path string, params url.Values) {
	q := url.Values{}
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}
	r.push(Location{Path: cleanPath(path), Query: q})
}

// Back returns to the previous location. With an empty history it stays
// on the home page.
func (r *Router) Back() {
	r.mu.Lock()
	if n := len(r.history); n > 0 {
		r.current = r.history[n-1]
		r.history = r.history[:n-1]
	} else {
		r.current = Location{Path: HomePath}
	}
	loc, fn := r.current, r.onChange
	r.mu.Unlock()

	r.log.Debug("storefront: back to %s", loc)
	if fn != nil {
		fn(loc)
	}
}

// Current returns the current location.
func (r *Router) Current() Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Depth returns the number of locations Back can return to.
func (r *Router) Depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

func (r *Router) push(loc Location) {
	r.mu.Lock()
	if loc.String() == r.current.String() {
		r.mu.Unlock()
		return
	}
	r.history = append(r.history, r.current)
	r.current = loc
	fn := r.onChange
	r.mu.Unlock()

	r.log.Debug("storefront: navigate to %s", loc)
	if fn != nil {
		fn(loc)
	}
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return HomePath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// ── Page metadata ────────────────────────────────────────────────

// PageName returns a human-readable name for a location, used by
// narration ("Navigating to shopping cart").
func PageName(loc Location) string {
	if term := loc.Query.Get("search"); term != "" {
		return "search results for " + term
	}
	switch {
	case loc.Path == HomePath:
		return "home"
	case loc.Path == "/cart":
		return "shopping cart"
	case loc.Path == "/checkout":
		return "checkout"
	case loc.Path == "/payment":
		return "payment"
	case loc.Path == "/order-success":
		return "order confirmation"
	case strings.HasPrefix(loc.Path, "/category/"):
		return strings.TrimPrefix(loc.Path, "/category/") + " category"
	case strings.HasPrefix(loc.Path, "/product/"):
		return "product details"
	default:
		return strings.Trim(loc.Path, "/")
	}
}

// Tip returns a suggested voice command for the page.
func Tip(loc Location) string {
	switch {
	case loc.Path == HomePath:
		return `Try: "Search for vitamins"`
	case strings.HasPrefix(loc.Path, "/category/"):
		return `Try: "Go back"`
	case loc.Path == "/cart":
		return `Try: "Checkout"`
	default:
		return `Try: "Go home"`
	}
}
