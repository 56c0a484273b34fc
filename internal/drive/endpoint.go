package drive

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net"
	"strconv"
	"strings"
	"sync"
)

// Endpoint is one candidate daemon node. Either address form may be empty.
type Endpoint struct {
	IPv4 string
	IPv6 string
	Port int
}

// Addrs returns the dialable host:port forms of the endpoint, IPv4 first.
func (e Endpoint) Addrs() []string {
	addrs := make([]string, 0, 2)
	port := strconv.Itoa(e.Port)

	if e.IPv4 != "" {
		addrs = append(addrs, net.JoinHostPort(e.IPv4, port))
	}

	if e.IPv6 != "" {
		addrs = append(addrs, net.JoinHostPort(e.IPv6, port))
	}

	return addrs
}

func (e Endpoint) String() string {
	return strings.Join(e.Addrs(), ",")
}

// Target is a selected endpoint together with the address form that
// answered the liveness probe.
type Target struct {
	Endpoint Endpoint
	Addr     string

	slot int // candidate index + 1; zero means no selection
}

// Prober runs a cheap liveness check against a host:port address.
type Prober interface {
	Probe(ctx context.Context, addr string) error
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context, addr string) error

// Probe calls f.
func (f ProbeFunc) Probe(ctx context.Context, addr string) error {
	return f(ctx, addr)
}

// Selector picks a live endpoint among candidates and remembers failures.
// A selection sticks until it is marked unreachable; a candidate marked
// unreachable is not probed again until Reset.
type Selector struct {
	candidates []Endpoint
	prober     Prober
	logger     *slog.Logger

	// shuffle orders candidate indices before probing. Tests override it
	// for deterministic order.
	shuffle func([]int)

	// onFailover is called each time a selection is abandoned.
	onFailover func()

	mu       sync.Mutex
	selected *Target
	down     map[int]bool
}

// NewSelector creates a Selector over the given candidates.
func NewSelector(candidates []Endpoint, prober Prober, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}

	return &Selector{
		candidates: append([]Endpoint(nil), candidates...),
		prober:     prober,
		logger:     logger,
		shuffle:    shuffleInts,
		down:       make(map[int]bool),
	}
}

// SetShuffle overrides the candidate ordering. Passing nil keeps the given
// order.
func (s *Selector) SetShuffle(fn func([]int)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fn == nil {
		fn = func([]int) {}
	}

	s.shuffle = fn
}

// OnFailover registers a hook called whenever a selected endpoint is
// marked unreachable.
func (s *Selector) OnFailover(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onFailover = fn
}

// Select returns the current selection, probing candidates in pseudo-random
// order when there is none. Fails with *EndpointUnreachableError when every
// eligible candidate is down.
func (s *Selector) Select(ctx context.Context) (Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected != nil {
		return *s.selected, nil
	}

	order := make([]int, 0, len(s.candidates))

	for i := range s.candidates {
		if !s.down[i] {
			order = append(order, i)
		}
	}

	s.shuffle(order)

	var (
		tried   []string
		lastErr error
	)

	for _, i := range order {
		ep := s.candidates[i]

		for _, addr := range ep.Addrs() {
			if err := ctx.Err(); err != nil {
				return Target{}, err
			}

			tried = append(tried, addr)

			err := s.prober.Probe(ctx, addr)
			if err != nil {
				s.logger.Debug("endpoint probe failed",
					slog.String("addr", addr),
					slog.String("error", err.Error()),
				)

				lastErr = err

				continue
			}

			s.selected = &Target{Endpoint: ep, Addr: addr, slot: i + 1}
			s.logger.Info("selected endpoint", slog.String("addr", addr))

			return *s.selected, nil
		}

		s.down[i] = true
	}

	s.logger.Warn("no endpoint reachable", slog.Int("candidates", len(s.candidates)))

	return Target{}, &EndpointUnreachableError{Tried: tried, Err: lastErr}
}

// MarkUnreachable removes t's endpoint from eligibility until Reset. Marking
// the same endpoint twice, or one that is no longer selected, is safe.
func (s *Selector) MarkUnreachable(t Target) {
	s.mu.Lock()

	i := t.slot - 1
	if i < 0 || i >= len(s.candidates) || s.down[i] {
		s.mu.Unlock()
		return
	}

	s.down[i] = true

	wasSelected := s.selected != nil && s.selected.slot == t.slot
	if wasSelected {
		s.selected = nil
	}

	hook := s.onFailover
	s.mu.Unlock()

	s.logger.Warn("endpoint marked unreachable", slog.String("addr", t.Addr))

	if wasSelected && hook != nil {
		hook()
	}
}

// Reset forgets every unreachable mark and the current selection so the
// next Select re-probes from scratch.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = nil
	s.down = make(map[int]bool)
}

// Current returns the selected target without probing.
func (s *Selector) Current() (Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil {
		return Target{}, false
	}

	return *s.selected, true
}

func shuffleInts(xs []int) {
	rand.Shuffle(len(xs), func(i, j int) { //nolint:gosec // load spreading does not need crypto rand
		xs[i], xs[j] = xs[j], xs[i]
	})
}
