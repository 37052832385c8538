package scorm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core"
)

var ErrNoRuntime = errors.New("no runtime attached")

const defaultTotalTime = "0000:00:00"

type PlayerOptions struct {
	ContentRoute  string
	HostOrigin    string
	ContentOrigin string
	Strict        bool
}

// Service owns the players of every learner: one per opened course.
type Service struct {
	resolver *Resolver
	states   StateStore
	queue    CommitQueue
	logger   core.Logger
	opts     PlayerOptions

	mu      sync.Mutex
	players map[string]*Player

	// snapshots handed to the queue but not yet stored, by learner/unit
	pendingMu  sync.Mutex
	pending    map[string]pendingCommit
	pendingSeq uint64

	newID func() string
	now   func() time.Time
}

func NewService(resolver *Resolver, states StateStore, queue CommitQueue, logger core.Logger, opts PlayerOptions) *Service {
	return &Service{
		resolver: resolver,
		states:   states,
		queue:    queue,
		logger:   logger,
		opts:     opts,
		players:  make(map[string]*Player),
		pending:  make(map[string]pendingCommit),
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
	}
}

// Load resolves the course and activates its initial unit for learner.
func (svc *Service) Load(ctx context.Context, courseID string, learner Learner) (*Player, error) {
	res, err := svc.resolver.Resolve(ctx, courseID)
	if err != nil {
		return nil, err
	}

	p := &Player{
		ID:       svc.newID(),
		CourseID: courseID,
		Learner:  learner,
		svc:      svc,
		lastSeen: svc.now(),
	}
	p.nav = NewNavigator(res, NavigatorDeps{
		Route:         svc.opts.ContentRoute,
		Host:          NewScope("player:"+p.ID, svc.opts.HostOrigin, nil),
		ContentOrigin: svc.opts.ContentOrigin,
		NewBridge:     svc.bridgeFactory(learner),
		Logger:        svc.logger,
	})
	if _, err := p.nav.Activate(ctx, res.InitialIndex); err != nil {
		p.nav.Teardown()
		return nil, errors.Wrap(err, "activating initial unit")
	}

	svc.mu.Lock()
	svc.players[p.ID] = p
	svc.mu.Unlock()

	svc.logger.Info(fmt.Sprintf("player %s opened course %s (package %s)", p.ID, courseID, res.Package.ID), learner)
	return p, nil
}

// Get returns the player with id, provided it belongs to learnerID.
func (svc *Service) Get(playerID, learnerID string) (*Player, error) {
	svc.mu.Lock()
	p, ok := svc.players[playerID]
	svc.mu.Unlock()
	if !ok || p.Learner.ID != learnerID {
		return nil, ErrPlayerNotFound
	}
	return p, nil
}

// Teardown releases and forgets the player.
func (svc *Service) Teardown(playerID, learnerID string) error {
	p, err := svc.Get(playerID, learnerID)
	if err != nil {
		return err
	}
	svc.remove(p)
	return nil
}

// Expire tears down players not used for maxIdle. It returns how many were reaped.
func (svc *Service) Expire(maxIdle time.Duration) int {
	cutoff := svc.now().Add(-maxIdle)

	svc.mu.Lock()
	var stale []*Player
	for _, p := range svc.players {
		if p.idleSince().Before(cutoff) {
			stale = append(stale, p)
		}
	}
	svc.mu.Unlock()

	for _, p := range stale {
		svc.remove(p)
		svc.logger.Info(fmt.Sprintf("player %s expired", p.ID), p.Learner)
	}
	return len(stale)
}

// Close tears every player down.
func (svc *Service) Close() {
	svc.mu.Lock()
	players := make([]*Player, 0, len(svc.players))
	for _, p := range svc.players {
		players = append(players, p)
	}
	svc.mu.Unlock()

	for _, p := range players {
		svc.remove(p)
	}
}

func (svc *Service) remove(p *Player) {
	svc.mu.Lock()
	delete(svc.players, p.ID)
	svc.mu.Unlock()
	p.teardown()
}

func (svc *Service) bridgeFactory(learner Learner) BridgeFactory {
	return func(ctx context.Context, unit ContentUnit) (*Bridge, error) {
		attempt, seed, err := svc.seed(ctx, learner, unit)
		if err != nil {
			return nil, err
		}
		return NewBridge(unit, learner, attempt, seed, trackingQueue{svc}, svc.logger, BridgeOptions{Strict: svc.opts.Strict}), nil
	}
}

// seed picks the attempt to run and builds the initial model of its session.
func (svc *Service) seed(ctx context.Context, learner Learner, unit ContentUnit) (int, map[string]string, error) {
	attempt := 1
	model := make(map[string]string)
	entry := "ab-initio"

	prev, err := svc.latestState(ctx, learner.ID, unit.ID)
	switch {
	case err == nil && prev.IsFinal():
		attempt = prev.Attempt + 1
	case err == nil:
		attempt = prev.Attempt
		for k, v := range prev.Model {
			model[k] = v
		}
		entry = ""
		if prev.Model[ElemExit] == "suspend" {
			entry = "resume"
		}
	case errors.Cause(err) != ErrStateNotFound:
		return 0, nil, errors.Wrap(err, "loading runtime state")
	}

	delete(model, ElemSessionTime)
	delete(model, ElemExit)
	model[ElemStudentID] = learner.ID
	model[ElemStudentName] = learner.Name
	model[ElemLessonMode] = "normal"
	model[ElemCredit] = "credit"
	model[ElemEntry] = entry
	if model[ElemTotalTime] == "" {
		model[ElemTotalTime] = defaultTotalTime
	}
	return attempt, model, nil
}

type pendingCommit struct {
	seq   uint64
	state RuntimeState
}

func pendingKey(learnerID, unitID string) string {
	return learnerID + "/" + unitID
}

// latestState prefers a snapshot still waiting in the queue over the stored one.
func (svc *Service) latestState(ctx context.Context, learnerID, unitID string) (RuntimeState, error) {
	svc.pendingMu.Lock()
	pc, ok := svc.pending[pendingKey(learnerID, unitID)]
	svc.pendingMu.Unlock()
	if ok {
		return pc.state, nil
	}
	return svc.states.LatestRuntimeState(ctx, learnerID, unitID)
}

func (svc *Service) track(task CommitTask) (string, uint64) {
	key := pendingKey(task.LearnerID, task.UnitID)
	state := RuntimeState{
		LearnerID:    task.LearnerID,
		UnitID:       task.UnitID,
		Attempt:      task.Attempt,
		Model:        task.Snapshot,
		LessonStatus: task.Snapshot[ElemLessonStatus],
		CommittedAt:  task.EnqueuedAt,
	}

	svc.pendingMu.Lock()
	defer svc.pendingMu.Unlock()
	svc.pendingSeq++
	svc.pending[key] = pendingCommit{seq: svc.pendingSeq, state: state}
	return key, svc.pendingSeq
}

// settle forgets the snapshot seq unless a newer one replaced it.
func (svc *Service) settle(key string, seq uint64) {
	svc.pendingMu.Lock()
	defer svc.pendingMu.Unlock()
	if pc, ok := svc.pending[key]; ok && pc.seq == seq {
		delete(svc.pending, key)
	}
}

// trackingQueue keeps the snapshots of the service's bridges visible to seed until they are stored.
type trackingQueue struct {
	svc *Service
}

func (q trackingQueue) Enqueue(task CommitTask) bool {
	key, seq := q.svc.track(task)
	task.settled = func() { q.svc.settle(key, seq) }
	if !q.svc.queue.Enqueue(task) {
		q.svc.settle(key, seq)
		return false
	}
	return true
}

// Player is one learner's view of one course. Methods are serialized so HTTP callers
// observe the single-threaded call order the runtime protocol assumes.
type Player struct {
	ID       string
	CourseID string
	Learner  Learner

	svc *Service
	nav *Navigator

	mu       sync.Mutex
	lastSeen time.Time
}

func (p *Player) touch() {
	p.lastSeen = p.svc.now()
}

func (p *Player) idleSince() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

// Activate moves to the unit at index; out-of-range indices leave the player unchanged.
func (p *Player) Activate(ctx context.Context, index int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touch()
	return p.nav.Activate(ctx, index)
}

func (p *Player) MarkLoaded() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touch()
	p.nav.MarkLoaded()
}

type CallResult struct {
	Result    string    `json:"result"`
	ErrorCode ErrorCode `json:"error_code"`
}

// Call runs method on the API the active content frame discovers.
// A unitID naming another unit reaches a detached runtime.
func (p *Player) Call(unitID, method string, args ...string) (CallResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touch()

	var api API
	if pos, ok := p.nav.Current(); unitID != "" && (!ok || pos.Unit.ID != unitID) {
		api = detachedAPI{}
	} else {
		frame := p.nav.Frame()
		if frame == nil {
			return CallResult{}, ErrNoRuntime
		}
		if api, ok = FindAPI(frame); !ok {
			return CallResult{}, ErrNoRuntime
		}
	}

	result, err := Dispatch(api, method, args...)
	if err != nil {
		return CallResult{}, err
	}
	return CallResult{Result: result, ErrorCode: ErrorCode(api.GetLastError())}, nil
}

type PlayerView struct {
	ID       string         `json:"id"`
	CourseID string         `json:"course_id"`
	Package  ContentPackage `json:"package"`
	Units    []ContentUnit  `json:"units"`
	Current  *Position      `json:"current,omitempty"`
	Session  *SessionState  `json:"session,omitempty"`
	Attempt  int            `json:"attempt,omitempty"`
}

func (p *Player) View() PlayerView {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := p.nav.Resolution()
	view := PlayerView{
		ID:       p.ID,
		CourseID: p.CourseID,
		Package:  res.Package,
		Units:    res.Units,
	}
	if pos, ok := p.nav.Current(); ok {
		view.Current = &pos
	}
	if b := p.nav.Bridge(); b != nil {
		st := b.State()
		view.Session = &st
		view.Attempt = b.Attempt()
	}
	return view
}

func (p *Player) teardown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nav.Teardown()
}
