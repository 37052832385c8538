package scorm

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core"
)

// API is the synchronous call surface legacy content expects. Every call returns a string;
// booleans are "true" / "false".
type API interface {
	Initialize() string
	Terminate() string
	GetValue(element string) string
	SetValue(element, value string) string
	Commit() string
	GetLastError() string
	GetErrorString(code string) string
	GetDiagnostic(code string) string
}

const (
	apiTrue  = "true"
	apiFalse = "false"
)

// CommitTask carries a model snapshot from the call surface to the state store.
type CommitTask struct {
	LearnerID  string
	UnitID     string
	Attempt    int
	Snapshot   map[string]string
	Reason     string // "commit" | "terminate"
	EnqueuedAt time.Time

	settled func() // called once the store took the task, or gave up on it
}

// CommitQueue accepts commit tasks without blocking the caller.
type CommitQueue interface {
	Enqueue(task CommitTask) bool
}

type BridgeOptions struct {
	// Strict enforces the SCORM 1.2 data model (keywords, read/write-only elements, data types).
	Strict bool
}

// Bridge adapts one RuntimeSession to the API call surface.
// State changes are synchronous; persistence is handed to the CommitQueue.
type Bridge struct {
	mu sync.Mutex

	unit    ContentUnit
	learner Learner
	attempt int
	sess    *session

	queue  CommitQueue
	logger core.Logger
	strict bool

	detached      bool
	diagnostic    string
	baseTotalTime time.Duration
}

var _ API = (*Bridge)(nil)

// NewBridge creates the bridge of a fresh session seeded with seed.
func NewBridge(
	unit ContentUnit,
	learner Learner,
	attempt int,
	seed map[string]string,
	queue CommitQueue,
	logger core.Logger,
	opts BridgeOptions,
) *Bridge {
	b := &Bridge{
		unit:    unit,
		learner: learner,
		attempt: attempt,
		sess:    newSession(seed),
		queue:   queue,
		logger:  logger,
		strict:  opts.Strict,
	}
	if total, err := ParseTimespan(seed[ElemTotalTime]); err == nil {
		b.baseTotalTime = total
	}
	return b
}

func (b *Bridge) Unit() ContentUnit { return b.unit }
func (b *Bridge) Attempt() int      { return b.attempt }

// State returns the session lifecycle flags.
func (b *Bridge) State() SessionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess.state()
}

// Snapshot returns a copy of the session model.
func (b *Bridge) Snapshot() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyModel(b.sess.model)
}

// detach makes every further call fail with a general exception, without touching the model.
func (b *Bridge) detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detached = true
}

func (b *Bridge) Initialize() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if perr := b.checkAttached("Initialize"); perr != nil {
		return b.fail(perr, apiFalse)
	}
	if b.sess.finished {
		return b.fail(newProtocolError(ErrCodeGeneral, "Initialize called after Terminate"), apiFalse)
	}
	// repeated calls succeed as long as the session is not finished
	b.sess.initialized = true
	if b.sess.model[ElemLessonStatus] == "" {
		b.sess.model[ElemLessonStatus] = StatusIncomplete
	}
	return b.succeed(apiTrue)
}

func (b *Bridge) Terminate() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if perr := b.checkMutable("Terminate"); perr != nil {
		return b.fail(perr, apiFalse)
	}
	b.sess.finished = true
	if b.sess.model[ElemLessonStatus] == StatusIncomplete {
		b.sess.model[ElemLessonStatus] = StatusCompleted
	}
	if st, err := ParseTimespan(b.sess.model[ElemSessionTime]); err == nil {
		b.sess.model[ElemTotalTime] = FormatTimespan(b.baseTotalTime + st)
	}
	b.enqueueCommit("terminate")
	return b.succeed(apiTrue)
}

func (b *Bridge) GetValue(element string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if perr := b.checkAttached("GetValue"); perr != nil {
		return b.fail(perr, "")
	}
	// empty element is the diagnostic probe some content issues before Initialize
	if element == "" {
		return b.fail(newProtocolError(ErrCodeInvalidArgument, "GetValue called without an element"), "")
	}
	if !b.sess.initialized {
		return b.fail(newProtocolError(ErrCodeNotInitialized, "GetValue(%s) called before Initialize", element), "")
	}
	if b.strict {
		value, handled, perr := strictGet(b.sess.model, element)
		if perr != nil {
			return b.fail(perr, "")
		}
		if handled {
			return b.succeed(value)
		}
	}
	return b.succeed(b.sess.model[element])
}

func (b *Bridge) SetValue(element, value string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if perr := b.checkMutable("SetValue"); perr != nil {
		return b.fail(perr, apiFalse)
	}
	if element == "" {
		return b.fail(newProtocolError(ErrCodeInvalidArgument, "SetValue called without an element"), apiFalse)
	}
	if b.strict {
		if perr := strictSet(b.sess.model, element, value); perr != nil {
			return b.fail(perr, apiFalse)
		}
	}
	b.sess.model[element] = value
	return b.succeed(apiTrue)
}

func (b *Bridge) Commit() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if perr := b.checkMutable("Commit"); perr != nil {
		return b.fail(perr, apiFalse)
	}
	b.enqueueCommit("commit")
	return b.succeed(apiTrue)
}

func (b *Bridge) GetLastError() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.sess.lastError)
}

func (b *Bridge) GetErrorString(code string) string {
	return ErrorString(code)
}

func (b *Bridge) GetDiagnostic(code string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if code == "" {
		code = string(b.sess.lastError)
	}
	diag := code + ": " + ErrorString(code)
	if ErrorCode(code) == b.sess.lastError && b.diagnostic != "" {
		diag += " (" + b.diagnostic + ")"
	}
	return diag
}

func (b *Bridge) checkAttached(call string) *protocolError {
	if b.detached {
		return newProtocolError(ErrCodeGeneral, "%s called on a detached runtime", call)
	}
	return nil
}

// checkMutable guards every state-mutating call.
func (b *Bridge) checkMutable(call string) *protocolError {
	if perr := b.checkAttached(call); perr != nil {
		return perr
	}
	if !b.sess.initialized {
		return newProtocolError(ErrCodeNotInitialized, "%s called before Initialize", call)
	}
	if b.sess.finished {
		return newProtocolError(ErrCodeGeneral, "%s called after Terminate", call)
	}
	return nil
}

func (b *Bridge) succeed(ret string) string {
	b.sess.lastError = ErrCodeNone
	b.diagnostic = ""
	return ret
}

func (b *Bridge) fail(perr *protocolError, ret string) string {
	b.sess.lastError = perr.code
	b.diagnostic = perr.detail
	b.logger.Debug(fmt.Sprintf("runtime call failed on unit %s: %s", b.unit.ID, perr.Error()), b.learner)
	return ret
}

// enqueueCommit hands the current snapshot over; the outcome never changes the call's return value.
func (b *Bridge) enqueueCommit(reason string) {
	task := CommitTask{
		LearnerID:  b.learner.ID,
		UnitID:     b.unit.ID,
		Attempt:    b.attempt,
		Snapshot:   copyModel(b.sess.model),
		Reason:     reason,
		EnqueuedAt: time.Now().UTC(),
	}
	if !b.queue.Enqueue(task) {
		b.logger.Warn(
			fmt.Sprintf("dropping %s snapshot of unit %s (attempt %d)", reason, b.unit.ID, b.attempt),
			errors.New("commit queue unavailable"),
			b.learner,
		)
	}
}

// detachedAPI answers calls aimed at a runtime that is no longer the active one.
type detachedAPI struct{}

var _ API = detachedAPI{}

func (detachedAPI) Initialize() string                { return apiFalse }
func (detachedAPI) Terminate() string                 { return apiFalse }
func (detachedAPI) GetValue(string) string            { return "" }
func (detachedAPI) SetValue(string, string) string    { return apiFalse }
func (detachedAPI) Commit() string                    { return apiFalse }
func (detachedAPI) GetLastError() string              { return string(ErrCodeGeneral) }
func (detachedAPI) GetErrorString(code string) string { return ErrorString(code) }
func (detachedAPI) GetDiagnostic(code string) string {
	if code == "" {
		code = string(ErrCodeGeneral)
	}
	return code + ": " + ErrorString(code) + " (runtime detached)"
}

// ErrUnknownMethod is returned by Dispatch for names outside the call surface.
var ErrUnknownMethod = errors.New("unknown runtime method")

// Methods lists every name Dispatch accepts, SCORM 1.2 LMS* aliases included.
var Methods = []string{
	"Initialize", "Terminate", "GetValue", "SetValue", "Commit", "GetLastError", "GetErrorString", "GetDiagnostic",
	"LMSInitialize", "LMSFinish", "LMSGetValue", "LMSSetValue", "LMSCommit", "LMSGetLastError", "LMSGetErrorString", "LMSGetDiagnostic",
}

// Dispatch invokes method on api with positional string args; missing args are empty strings.
func Dispatch(api API, method string, args ...string) (string, error) {
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch method {
	case "Initialize", "LMSInitialize":
		return api.Initialize(), nil
	case "Terminate", "LMSFinish":
		return api.Terminate(), nil
	case "GetValue", "LMSGetValue":
		return api.GetValue(arg(0)), nil
	case "SetValue", "LMSSetValue":
		return api.SetValue(arg(0), arg(1)), nil
	case "Commit", "LMSCommit":
		return api.Commit(), nil
	case "GetLastError", "LMSGetLastError":
		return api.GetLastError(), nil
	case "GetErrorString", "LMSGetErrorString":
		return api.GetErrorString(arg(0)), nil
	case "GetDiagnostic", "LMSGetDiagnostic":
		return api.GetDiagnostic(arg(0)), nil
	}
	return "", errors.Wrap(ErrUnknownMethod, method)
}
