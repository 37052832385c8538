package scorm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type logEntry struct {
	level string
	msg   string
}

// recordingLogger keeps every message; no output.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
}

func (l *recordingLogger) Debug(msg string, _ ...interface{}) { l.log("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...interface{})  { l.log("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...interface{})  { l.log("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...interface{}) { l.log("error", msg) }
func (l *recordingLogger) Fatal(msg string, _ ...interface{}) { l.log("fatal", msg) }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

type commitCall struct {
	learnerID string
	unitID    string
	attempt   int
	snapshot  map[string]string
}

// fakeStore implements both PackageRepository and StateStore.
type fakeStore struct {
	mu        sync.Mutex
	packages  map[string]ContentPackage // by course id
	units     map[string][]ContentUnit  // by package id
	states    map[string]RuntimeState   // by learner/unit
	commits   []commitCall
	commitErr error
	block     chan struct{} // when set, commits wait on it
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		packages: make(map[string]ContentPackage),
		units:    make(map[string][]ContentUnit),
		states:   make(map[string]RuntimeState),
	}
}

func (s *fakeStore) addPackage(courseID string, pkg ContentPackage, units ...ContentUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg.CourseID = courseID
	s.packages[courseID] = pkg
	s.units[pkg.ID] = units
}

func (s *fakeStore) GetPackageByCourse(_ context.Context, courseID string) (ContentPackage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg, ok := s.packages[courseID]
	if !ok {
		return ContentPackage{}, errors.Wrap(ErrPackageNotFound, courseID)
	}
	return pkg, nil
}

func (s *fakeStore) GetPackage(_ context.Context, packageID string) (ContentPackage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pkg := range s.packages {
		if pkg.ID == packageID {
			return pkg, nil
		}
	}
	return ContentPackage{}, ErrPackageNotFound
}

func (s *fakeStore) QueryUnits(_ context.Context, packageID string) ([]ContentUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.units[packageID], nil
}

func (s *fakeStore) CommitRuntimeState(_ context.Context, learnerID, unitID string, attempt int, snapshot map[string]string) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, commitCall{learnerID, unitID, attempt, copyModel(snapshot)})
	if s.commitErr != nil {
		return s.commitErr
	}
	s.states[learnerID+"/"+unitID] = RuntimeState{
		LearnerID:    learnerID,
		UnitID:       unitID,
		Attempt:      attempt,
		Model:        copyModel(snapshot),
		LessonStatus: snapshot[ElemLessonStatus],
		CommittedAt:  time.Now(),
	}
	return nil
}

func (s *fakeStore) LatestRuntimeState(_ context.Context, learnerID, unitID string) (RuntimeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[learnerID+"/"+unitID]
	if !ok {
		return RuntimeState{}, ErrStateNotFound
	}
	return st, nil
}

func (s *fakeStore) commitCalls() []commitCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]commitCall(nil), s.commits...)
}

// recordingQueue accepts tasks until full.
type recordingQueue struct {
	mu    sync.Mutex
	tasks []CommitTask
	full  bool
}

func (q *recordingQueue) Enqueue(task CommitTask) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.tasks = append(q.tasks, task)
	return true
}

func newTestBridge(seed map[string]string, opts ...BridgeOptions) (*Bridge, *recordingQueue) {
	var o BridgeOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	q := new(recordingQueue)
	unit := ContentUnit{ID: "A", PackageID: "pkg", LaunchPath: "index.html", IsEntryPoint: true}
	return NewBridge(unit, Learner{ID: "l1", Name: "Doe, Jane"}, 1, seed, q, new(recordingLogger), o), q
}

func testUnits(n int) []ContentUnit {
	units := make([]ContentUnit, n)
	for i := range units {
		units[i] = ContentUnit{
			ID:         fmt.Sprintf("U%d", i),
			PackageID:  "pkg",
			LaunchPath: fmt.Sprintf("sco%d/index.html", i),
			Position:   i,
		}
	}
	return units
}
