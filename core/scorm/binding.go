package scorm

import (
	"sync"

	"github.com/pkg/errors"
)

// APIName is the well-known binding name SCORM 1.2 content searches for.
const APIName = "API"

// maxDiscoveryHops bounds the ancestor walk, as legacy discovery scripts do.
const maxDiscoveryHops = 7

// Scope is one browsing context: a named set of bindings with an origin and an optional parent.
type Scope struct {
	mu       sync.RWMutex
	name     string
	origin   string
	parent   *Scope
	bindings map[string]API
}

func NewScope(name, origin string, parent *Scope) *Scope {
	return &Scope{
		name:     name,
		origin:   origin,
		parent:   parent,
		bindings: make(map[string]API),
	}
}

func (s *Scope) Name() string   { return s.name }
func (s *Scope) Origin() string { return s.origin }
func (s *Scope) Parent() *Scope { return s.parent }

// Bind sets the API binding of the scope, replacing any previous one.
func (s *Scope) Bind(api API) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[APIName] = api
}

// Unbind removes the binding only if it is still api, so a late release never clears a newer binding.
func (s *Scope) Unbind(api API) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.bindings[APIName]; ok && cur == api {
		delete(s.bindings, APIName)
		return true
	}
	return false
}

// Lookup returns the API bound directly in the scope.
func (s *Scope) Lookup() (API, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	api, ok := s.bindings[APIName]
	return api, ok
}

// FindAPI walks from scope up through its ancestors and returns the first API found.
func FindAPI(scope *Scope) (API, bool) {
	for hops := 0; scope != nil && hops <= maxDiscoveryHops; hops++ {
		if api, ok := scope.Lookup(); ok {
			return api, true
		}
		scope = scope.parent
	}
	return nil, false
}

// ErrCrossOrigin is returned by injectors that cannot reach into a frame of another origin.
var ErrCrossOrigin = errors.New("frame is not same-origin with its host")

// Injector places an API directly into a frame's scope.
type Injector interface {
	Inject(host, frame *Scope, api API) error
}

// OriginInjector injects only into frames sharing the host's origin.
type OriginInjector struct{}

func (OriginInjector) Inject(host, frame *Scope, api API) error {
	if frame == nil || host == nil {
		return errors.New("missing scope")
	}
	if frame.Origin() != host.Origin() {
		return errors.Wrapf(ErrCrossOrigin, "%s (%s) in %s (%s)", frame.Name(), frame.Origin(), host.Name(), host.Origin())
	}
	frame.Bind(api)
	return nil
}

// Attachment is the owned handle of one bridge binding. Release undoes everything the attachment did.
type Attachment struct {
	mu       sync.Mutex
	host     *Scope
	frame    *Scope
	bridge   *Bridge
	injected bool
	released bool
}

// Attach binds bridge in the host scope.
func Attach(host, frame *Scope, bridge *Bridge) *Attachment {
	host.Bind(bridge)
	return &Attachment{host: host, frame: frame, bridge: bridge}
}

func (a *Attachment) Bridge() *Bridge { return a.bridge }
func (a *Attachment) Frame() *Scope   { return a.frame }

// Inject tries to bind the bridge in the frame scope as well.
func (a *Attachment) Inject(inj Injector) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return errors.New("attachment released")
	}
	if a.injected {
		return nil
	}
	if err := inj.Inject(a.host, a.frame, a.bridge); err != nil {
		return err
	}
	a.injected = true
	return nil
}

// Release unbinds the bridge from every scope it was bound in and detaches it. Safe to call repeatedly.
func (a *Attachment) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return
	}
	a.released = true
	a.host.Unbind(a.bridge)
	if a.frame != nil {
		a.frame.Unbind(a.bridge)
	}
	a.bridge.detach()
}
