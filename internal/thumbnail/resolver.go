// Package thumbnail recovers a reachable Wikimedia thumbnail URL when the
// one advertised by the knowledge base does not answer.
//
// The image host is inconsistent: a thumbnail listed under the commons
// namespace may only exist under the English wiki namespace, and a 500 from
// the thumbnailer usually means the requested rendition is larger than the
// original. Resolver walks a fixed ladder of HEAD probes over those cases:
//
//	Initial --200--> Resolved
//	Initial --!200, rights !200--> Unresolved
//	Initial --!200, rights 200--> RightsChecked
//	RightsChecked --404--> CommonsRewritten
//	RightsChecked --500--> SizeFallback(100)
//	RightsChecked --other--> *UnexpectedStatusError
//	CommonsRewritten --200--> Resolved
//	CommonsRewritten --500--> SizeFallback(100)
//	CommonsRewritten --other--> Unresolved
//	SizeFallback(n) --200--> Resolved
//	SizeFallback(n) --!200--> SizeFallback(next) | Unresolved
package thumbnail

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Rendition sizes tried, in order, after the thumbnailer answers 500
var FallbackSizes = []string{"100", "75", "50", "25"}

const (
	// BaseSize is the rendition every candidate is normalized to
	BaseSize = "150"

	commonsSegment = "/commons/"
	enSegment      = "/en/"
)

// Prober issues a single HEAD request and reports the status code
type Prober interface {
	Head(ctx context.Context, rawURL string, followRedirects bool) (int, error)
}

// State is a node of the resolution ladder
type State int

const (
	Initial State = iota
	RightsChecked
	CommonsRewritten
	SizeFallback
	Resolved
	Unresolved
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case RightsChecked:
		return "rights-checked"
	case CommonsRewritten:
		return "commons-rewritten"
	case SizeFallback:
		return "size-fallback"
	case Resolved:
		return "resolved"
	case Unresolved:
		return "unresolved"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the ladder stops in this state
func (s State) Terminal() bool {
	return s == Resolved || s == Unresolved
}

// Resolution is the outcome of a completed ladder
type Resolution struct {
	State  State  // Resolved or Unresolved
	URL    string // working thumbnail URL, empty unless Resolved
	Probes int    // HEAD requests issued
}

// Found reports whether a working URL was recovered
func (r Resolution) Found() bool {
	return r.State == Resolved && r.URL != ""
}

// UnexpectedStatusError is returned when the first probe answers with a
// status the ladder has no rule for. It aborts the record rather than
// being folded into "no thumbnail".
type UnexpectedStatusError struct {
	StatusCode int
	URL        string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("thumbnail URL %s had unexpected status code %d", e.URL, e.StatusCode)
}

// Resolver runs the probe ladder
type Resolver struct {
	prober Prober
	logger *zap.Logger
}

// NewResolver creates a resolver over prober
func NewResolver(prober Prober, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{prober: prober, logger: logger}
}

// Resolve returns a working variant of candidateURL, or an Unresolved
// resolution when none can be found. rightsURL is the attribution page
// paired with the image; if it is gone no variant is pursued.
// Transport errors are returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, candidateURL, rightsURL string) (Resolution, error) {
	m := &ladder{
		resolver:  r,
		candidate: candidateURL,
		rights:    rightsURL,
		state:     Initial,
	}

	for !m.state.Terminal() {
		from := m.state
		if err := m.step(ctx); err != nil {
			return Resolution{Probes: m.probes}, err
		}
		r.logger.Debug("thumbnail transition",
			zap.Stringer("from", from),
			zap.Stringer("to", m.state),
			zap.String("url", m.current))
	}

	res := Resolution{State: m.state, Probes: m.probes}
	if m.state == Resolved {
		res.URL = m.current
	}
	return res, nil
}

// ladder is the mutable state of one Resolve call
type ladder struct {
	resolver *Resolver

	candidate string
	rights    string

	state           State
	candidateStatus int
	current         string // URL most recently probed or about to be
	fallbackBase    string // URL the size ladder rewrites
	sizeIdx         int
	probes          int
}

func (m *ladder) head(ctx context.Context, rawURL string, follow bool) (int, error) {
	m.probes++
	return m.resolver.prober.Head(ctx, rawURL, follow)
}

func (m *ladder) step(ctx context.Context) error {
	switch m.state {
	case Initial:
		m.current = m.candidate
		status, err := m.head(ctx, m.candidate, true)
		if err != nil {
			return err
		}
		if status == http.StatusOK {
			m.state = Resolved
			return nil
		}
		m.candidateStatus = status

		rightsStatus, err := m.head(ctx, m.rights, false)
		if err != nil {
			return err
		}
		if rightsStatus != http.StatusOK {
			m.state = Unresolved
			return nil
		}
		m.state = RightsChecked

	case RightsChecked:
		switch m.candidateStatus {
		case http.StatusNotFound:
			m.current = RewriteCommons(m.candidate)
			m.state = CommonsRewritten
		case http.StatusInternalServerError:
			m.enterFallback(m.candidate)
		default:
			return &UnexpectedStatusError{StatusCode: m.candidateStatus, URL: m.candidate}
		}

	case CommonsRewritten:
		status, err := m.head(ctx, m.current, false)
		if err != nil {
			return err
		}
		switch status {
		case http.StatusOK:
			m.state = Resolved
		case http.StatusInternalServerError:
			// The rewritten URL still has to carry /150px- for the size
			// ladder to change anything; a different upstream rendition
			// means the ladder re-probes the same URL.
			m.enterFallback(m.current)
		default:
			m.state = Unresolved
		}

	case SizeFallback:
		m.current = WithSize(m.fallbackBase, FallbackSizes[m.sizeIdx])
		status, err := m.head(ctx, m.current, false)
		if err != nil {
			return err
		}
		if status == http.StatusOK {
			m.state = Resolved
			return nil
		}
		m.sizeIdx++
		if m.sizeIdx >= len(FallbackSizes) {
			m.state = Unresolved
		}

	default:
		return fmt.Errorf("thumbnail: no transition out of %s", m.state)
	}
	return nil
}

func (m *ladder) enterFallback(base string) {
	m.fallbackBase = base
	m.sizeIdx = 0
	m.state = SizeFallback
}

// RewriteCommons moves the first /commons/ path segment to /en/
func RewriteCommons(rawURL string) string {
	return strings.Replace(rawURL, commonsSegment, enSegment, 1)
}

// WithSize swaps the first /150px- rendition marker for /<size>px-.
// Only the literal 150px marker is recognised.
func WithSize(rawURL, size string) string {
	return strings.Replace(rawURL, "/"+BaseSize+"px-", "/"+size+"px-", 1)
}

// Normalize rewrites every 200px rendition marker to the base 150px one
func Normalize(rawURL string) string {
	return strings.ReplaceAll(rawURL, "200px-", BaseSize+"px-")
}
