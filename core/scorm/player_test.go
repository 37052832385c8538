package scorm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type playerFixture struct {
	store  *fakeStore
	queue  *CommitterMock
	svc    *Service
	pkgID  string
	now    time.Time
	nextID int
}

func newPlayerFixture(t *testing.T) *playerFixture {
	t.Helper()
	f := &playerFixture{
		store: newFakeStore(),
		pkgID: "7d7f9bb0-12a4-4f4e-9c0c-5b3a8f2f0d61",
		now:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.store.addPackage("course-1", ContentPackage{ID: f.pkgID, Title: "Safety 101", Version: DefaultFormatVersion},
		ContentUnit{ID: "A", PackageID: f.pkgID, LaunchPath: "index.html", IsEntryPoint: true, Position: 0},
		ContentUnit{ID: "B", PackageID: f.pkgID, LaunchPath: "m2/start.html", Position: 1},
	)

	logger := new(recordingLogger)
	f.queue = NewCommitterMock(f.store, logger)
	f.svc = NewService(NewResolver(f.store, "scorm-content"), f.store, f.queue, logger, PlayerOptions{
		ContentRoute: "scorm-content",
		HostOrigin:   "https://lms.test",
	})
	f.svc.now = func() time.Time { return f.now }
	f.svc.newID = func() string {
		f.nextID++
		return fmt.Sprintf("player-%d", f.nextID)
	}
	return f
}

func call(t *testing.T, p *Player, method string, args ...string) CallResult {
	t.Helper()
	res, err := p.Call("", method, args...)
	require.NoError(t, err)
	return res
}

func TestService_endToEnd(t *testing.T) {
	f := newPlayerFixture(t)
	learner := Learner{ID: "l1", Name: "Doe, Jane"}

	p, err := f.svc.Load(context.Background(), "course-1", learner)
	require.NoError(t, err)

	view := p.View()
	require.NotNil(t, view.Current)
	assert.Equal(t, 0, view.Current.Index)
	assert.Equal(t, "/scorm-content/"+f.pkgID+"/index.html", view.Current.LaunchURL)
	assert.Equal(t, Loading, view.Current.State)
	assert.Equal(t, 1, view.Attempt)

	assert.Equal(t, CallResult{Result: "true", ErrorCode: ErrCodeNone}, call(t, p, "Initialize"))
	assert.Equal(t, "true", call(t, p, "SetValue", ElemLessonLocation, "page3").Result)
	assert.Equal(t, "true", call(t, p, "Commit").Result)

	calls := f.store.commitCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "page3", calls[0].snapshot[ElemLessonLocation])
	assert.Equal(t, "A", calls[0].unitID)
	assert.Equal(t, 1, calls[0].attempt)
}

func TestService_Load(t *testing.T) {
	f := newPlayerFixture(t)
	f.store.addPackage("course-empty", ContentPackage{ID: "p-empty"})
	ctx := context.Background()

	_, err := f.svc.Load(ctx, "unknown", Learner{ID: "l1"})
	assert.Equal(t, ErrPackageNotFound, err)

	_, err = f.svc.Load(ctx, "course-empty", Learner{ID: "l1"})
	assert.Equal(t, ErrNoEntryUnit, err)
}

func TestService_seed(t *testing.T) {
	f := newPlayerFixture(t)
	ctx := context.Background()
	learner := Learner{ID: "l1", Name: "Doe, Jane"}

	p, err := f.svc.Load(ctx, "course-1", learner)
	require.NoError(t, err)

	call(t, p, "Initialize")
	assert.Equal(t, "l1", call(t, p, "GetValue", ElemStudentID).Result)
	assert.Equal(t, "Doe, Jane", call(t, p, "GetValue", ElemStudentName).Result)
	assert.Equal(t, "ab-initio", call(t, p, "GetValue", ElemEntry).Result)
	assert.Equal(t, "credit", call(t, p, "GetValue", ElemCredit).Result)
	assert.Equal(t, "normal", call(t, p, "GetValue", ElemLessonMode).Result)
	assert.Equal(t, "0000:00:00", call(t, p, "GetValue", ElemTotalTime).Result)

	call(t, p, "SetValue", ElemLessonLocation, "page7")
	call(t, p, "SetValue", ElemExit, "suspend")
	call(t, p, "SetValue", ElemLessonStatus, StatusIncomplete)
	call(t, p, "Commit")
	require.NoError(t, f.svc.Teardown(p.ID, learner.ID))

	// resume the same attempt
	p, err = f.svc.Load(ctx, "course-1", learner)
	require.NoError(t, err)
	call(t, p, "Initialize")
	assert.Equal(t, "resume", call(t, p, "GetValue", ElemEntry).Result)
	assert.Equal(t, "page7", call(t, p, "GetValue", ElemLessonLocation).Result)
	assert.Equal(t, "", call(t, p, "GetValue", ElemExit).Result)
	assert.Equal(t, 1, p.View().Attempt)

	call(t, p, "SetValue", ElemSessionTime, "0000:05:00")
	call(t, p, "Terminate")
	require.NoError(t, f.svc.Teardown(p.ID, learner.ID))

	// completed: next attempt, fresh model
	p, err = f.svc.Load(ctx, "course-1", learner)
	require.NoError(t, err)
	call(t, p, "Initialize")
	assert.Equal(t, 2, p.View().Attempt)
	assert.Equal(t, "ab-initio", call(t, p, "GetValue", ElemEntry).Result)
	assert.Equal(t, "", call(t, p, "GetValue", ElemLessonLocation).Result)
	assert.Equal(t, StatusIncomplete, call(t, p, "GetValue", ElemLessonStatus).Result)
}

func TestPlayer_Call(t *testing.T) {
	f := newPlayerFixture(t)
	ctx := context.Background()

	p, err := f.svc.Load(ctx, "course-1", Learner{ID: "l1"})
	require.NoError(t, err)

	res := call(t, p, "SetValue", ElemLessonLocation, "x")
	assert.Equal(t, CallResult{Result: "false", ErrorCode: ErrCodeNotInitialized}, res)

	res, err = p.Call("A", "LMSInitialize", "")
	require.NoError(t, err)
	assert.Equal(t, "true", res.Result)

	_, err = p.Call("", "DoSomething")
	assert.Error(t, err)

	// navigate, then a stale call from unit A
	activated, err := p.Activate(ctx, 1)
	require.NoError(t, err)
	require.True(t, activated)

	res, err = p.Call("A", "SetValue", ElemLessonLocation, "stray")
	require.NoError(t, err)
	assert.Equal(t, CallResult{Result: "false", ErrorCode: ErrCodeGeneral}, res)

	res, err = p.Call("B", "GetLastError")
	require.NoError(t, err)
	assert.Equal(t, "0", res.Result)

	view := p.View()
	require.NotNil(t, view.Session)
	assert.False(t, view.Session.Initialized)
	assert.Equal(t, "B", view.Current.Unit.ID)

	activated, err = p.Activate(ctx, 2)
	require.NoError(t, err)
	assert.False(t, activated)

	p.MarkLoaded()
	assert.Equal(t, Loaded, p.View().Current.State)
}

func TestService_Get(t *testing.T) {
	f := newPlayerFixture(t)
	p, err := f.svc.Load(context.Background(), "course-1", Learner{ID: "l1"})
	require.NoError(t, err)

	got, err := f.svc.Get(p.ID, "l1")
	require.NoError(t, err)
	assert.Same(t, p, got)

	_, err = f.svc.Get(p.ID, "l2")
	assert.Equal(t, ErrPlayerNotFound, err, "players are private to their learner")
	_, err = f.svc.Get("nope", "l1")
	assert.Equal(t, ErrPlayerNotFound, err)
}

func TestService_TeardownAndExpire(t *testing.T) {
	f := newPlayerFixture(t)
	ctx := context.Background()

	p1, err := f.svc.Load(ctx, "course-1", Learner{ID: "l1"})
	require.NoError(t, err)
	f.now = f.now.Add(time.Hour)
	p2, err := f.svc.Load(ctx, "course-1", Learner{ID: "l2"})
	require.NoError(t, err)

	f.now = f.now.Add(30 * time.Minute)
	assert.Equal(t, 1, f.svc.Expire(time.Hour))

	_, err = f.svc.Get(p1.ID, "l1")
	assert.Equal(t, ErrPlayerNotFound, err)
	_, err = p1.Call("", "Initialize")
	assert.Equal(t, ErrNoRuntime, err)

	require.NoError(t, f.svc.Teardown(p2.ID, "l2"))
	assert.Equal(t, ErrPlayerNotFound, f.svc.Teardown(p2.ID, "l2"))

	p3, err := f.svc.Load(ctx, "course-1", Learner{ID: "l3"})
	require.NoError(t, err)
	f.svc.Close()
	_, err = f.svc.Get(p3.ID, "l3")
	assert.Equal(t, ErrPlayerNotFound, err)
}

func TestService_seedFromQueuedSnapshot(t *testing.T) {
	f := newPlayerFixture(t)
	f.store.block = make(chan struct{})
	committer := NewCommitter(f.store, new(recordingLogger), CommitterOptions{})
	committer.Start()
	f.svc.queue = committer
	ctx := context.Background()
	learner := Learner{ID: "l1"}

	p, err := f.svc.Load(ctx, "course-1", learner)
	require.NoError(t, err)
	call(t, p, "Initialize")
	call(t, p, "SetValue", ElemLessonLocation, "page7")
	call(t, p, "Terminate")

	// the store has not seen the terminate snapshot yet
	_, err = p.Activate(ctx, 1)
	require.NoError(t, err)
	_, err = p.Activate(ctx, 0)
	require.NoError(t, err)

	call(t, p, "Initialize")
	assert.Equal(t, 2, p.View().Attempt, "a completed attempt is not reopened")
	assert.Equal(t, "ab-initio", call(t, p, "GetValue", ElemEntry).Result)
	call(t, p, "Commit")

	close(f.store.block)
	require.NoError(t, committer.Stop(ctx))

	calls := f.store.commitCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, 1, calls[0].attempt)
	assert.Equal(t, StatusCompleted, calls[0].snapshot[ElemLessonStatus])
	assert.Equal(t, "page7", calls[0].snapshot[ElemLessonLocation])
	assert.Equal(t, 2, calls[1].attempt)

	f.svc.pendingMu.Lock()
	defer f.svc.pendingMu.Unlock()
	assert.Empty(t, f.svc.pending, "stored snapshots are forgotten")
}

func TestService_resumeFromQueuedSnapshot(t *testing.T) {
	f := newPlayerFixture(t)
	queue := new(recordingQueue)
	f.svc.queue = queue // never stores anything
	ctx := context.Background()

	p, err := f.svc.Load(ctx, "course-1", Learner{ID: "l1"})
	require.NoError(t, err)
	call(t, p, "Initialize")
	call(t, p, "SetValue", ElemLessonLocation, "page4")
	call(t, p, "SetValue", ElemExit, "suspend")
	call(t, p, "Commit")

	_, err = p.Activate(ctx, 1)
	require.NoError(t, err)
	_, err = p.Activate(ctx, 0)
	require.NoError(t, err)

	call(t, p, "Initialize")
	assert.Equal(t, 1, p.View().Attempt)
	assert.Equal(t, "resume", call(t, p, "GetValue", ElemEntry).Result)
	assert.Equal(t, "page4", call(t, p, "GetValue", ElemLessonLocation).Result)

	queue.full = true
	call(t, p, "Commit")
	f.svc.pendingMu.Lock()
	defer f.svc.pendingMu.Unlock()
	assert.NotContains(t, f.svc.pending, pendingKey("l1", "A"), "dropped snapshots are not kept")
}

func TestService_seedEntryWithoutSuspend(t *testing.T) {
	f := newPlayerFixture(t)
	ctx := context.Background()
	learner := Learner{ID: "l1"}

	p, err := f.svc.Load(ctx, "course-1", learner)
	require.NoError(t, err)
	call(t, p, "Initialize")
	call(t, p, "SetValue", ElemLessonLocation, "page2")
	call(t, p, "Commit")
	require.NoError(t, f.svc.Teardown(p.ID, learner.ID))

	p, err = f.svc.Load(ctx, "course-1", learner)
	require.NoError(t, err)
	call(t, p, "Initialize")
	assert.Equal(t, 1, p.View().Attempt)
	assert.Equal(t, "", call(t, p, "GetValue", ElemEntry).Result, "resumed without suspend")
	assert.Equal(t, "page2", call(t, p, "GetValue", ElemLessonLocation).Result)
}
