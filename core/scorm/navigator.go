package scorm

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core"
)

// LoadState tracks the content frame of the active unit.
type LoadState int

const (
	Idle LoadState = iota
	Loading
	Loaded
)

func (s LoadState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	}
	return "idle"
}

func (s LoadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LoadState) UnmarshalText(text []byte) error {
	for _, st := range []LoadState{Idle, Loading, Loaded} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return errors.Errorf("unknown load state %q", text)
}

var ErrNavigatorClosed = errors.New("navigator torn down")

// BridgeFactory creates the bridge of a fresh session for unit.
type BridgeFactory func(ctx context.Context, unit ContentUnit) (*Bridge, error)

type NavigatorDeps struct {
	Route         string // content route
	Host          *Scope
	Injector      Injector
	ContentOrigin string // defaults to the host origin
	NewBridge     BridgeFactory
	Logger        core.Logger
}

// Navigator moves between the units of one resolved package, one attached bridge at a time.
type Navigator struct {
	mu   sync.Mutex
	deps NavigatorDeps
	res  Resolution

	index      int
	launchURL  string
	state      LoadState
	attachment *Attachment
	closed     bool
}

func NewNavigator(res Resolution, deps NavigatorDeps) *Navigator {
	if deps.Injector == nil {
		deps.Injector = OriginInjector{}
	}
	if deps.Host == nil {
		deps.Host = NewScope("host", deps.ContentOrigin, nil)
	}
	if deps.ContentOrigin == "" {
		deps.ContentOrigin = deps.Host.Origin()
	}
	return &Navigator{deps: deps, res: res, index: -1}
}

// Activate switches to the unit at index. Out-of-range indices are ignored (false, nil).
// The current unit is left untouched when the new one cannot be built.
func (n *Navigator) Activate(ctx context.Context, index int) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return false, ErrNavigatorClosed
	}
	if index < 0 || index >= len(n.res.Units) {
		return false, nil
	}

	unit := n.res.Units[index]
	launchURL, err := LaunchURL(n.deps.Route, n.res.Package.ID, unit.LaunchPath)
	if err != nil {
		return false, errors.Wrapf(err, "activating unit %s", unit.ID)
	}
	bridge, err := n.deps.NewBridge(ctx, unit)
	if err != nil {
		return false, errors.Wrapf(err, "creating runtime for unit %s", unit.ID)
	}

	// the old binding must be gone before the new one is visible
	n.release()

	frame := NewScope(fmt.Sprintf("unit:%s", unit.ID), n.deps.ContentOrigin, n.deps.Host)
	n.attachment = Attach(n.deps.Host, frame, bridge)
	n.index = index
	n.launchURL = launchURL
	n.state = Loading
	return true, nil
}

// MarkLoaded records that the content frame finished loading and tries direct injection.
func (n *Navigator) MarkLoaded() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed || n.state != Loading {
		return
	}
	n.state = Loaded
	if err := n.attachment.Inject(n.deps.Injector); err != nil {
		// content falls back to walking up its ancestors
		n.deps.Logger.Debug(fmt.Sprintf("api not injected in %s: %v", n.attachment.Frame().Name(), err))
	}
}

// Teardown releases the active binding. Safe to call more than once.
func (n *Navigator) Teardown() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.release()
	n.closed = true
	n.state = Idle
}

func (n *Navigator) release() {
	if n.attachment != nil {
		n.attachment.Release()
		n.attachment = nil
	}
}

// Position describes the active unit.
type Position struct {
	Index     int         `json:"index"`
	Unit      ContentUnit `json:"unit"`
	LaunchURL string      `json:"launch_url"`
	State     LoadState   `json:"state"`
	CanPrev   bool        `json:"can_prev"`
	CanNext   bool        `json:"can_next"`
}

// Current returns the active position; ok is false before the first activation.
func (n *Navigator) Current() (pos Position, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.index < 0 {
		return Position{State: n.state}, false
	}
	return Position{
		Index:     n.index,
		Unit:      n.res.Units[n.index],
		LaunchURL: n.launchURL,
		State:     n.state,
		CanPrev:   n.index > 0,
		CanNext:   n.index < len(n.res.Units)-1,
	}, true
}

// Frame returns the scope of the active content frame, nil when nothing is attached.
func (n *Navigator) Frame() *Scope {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.attachment == nil {
		return nil
	}
	return n.attachment.Frame()
}

// Bridge returns the active bridge, nil when nothing is attached.
func (n *Navigator) Bridge() *Bridge {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.attachment == nil {
		return nil
	}
	return n.attachment.Bridge()
}

func (n *Navigator) Host() *Scope { return n.deps.Host }

func (n *Navigator) Resolution() Resolution { return n.res }
