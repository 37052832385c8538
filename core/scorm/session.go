package scorm

// Data model elements the runtime itself reads or seeds.
const (
	ElemStudentID      = "cmi.core.student_id"
	ElemStudentName    = "cmi.core.student_name"
	ElemLessonLocation = "cmi.core.lesson_location"
	ElemLessonStatus   = "cmi.core.lesson_status"
	ElemLessonMode     = "cmi.core.lesson_mode"
	ElemCredit         = "cmi.core.credit"
	ElemEntry          = "cmi.core.entry"
	ElemExit           = "cmi.core.exit"
	ElemTotalTime      = "cmi.core.total_time"
	ElemSessionTime    = "cmi.core.session_time"
	ElemScoreRaw       = "cmi.core.score.raw"
	ElemSuspendData    = "cmi.suspend_data"
)

// session is the ephemeral runtime state of one unit activation.
// Only the Bridge owning it reads or writes it.
type session struct {
	initialized bool
	finished    bool
	lastError   ErrorCode
	model       map[string]string
}

func newSession(seed map[string]string) *session {
	return &session{
		lastError: ErrCodeNone,
		model:     copyModel(seed),
	}
}

// SessionState is a read-only view of a session's lifecycle flags.
type SessionState struct {
	Initialized bool      `json:"initialized"`
	Finished    bool      `json:"finished"`
	LastError   ErrorCode `json:"last_error"`
}

func (s *session) state() SessionState {
	return SessionState{
		Initialized: s.initialized,
		Finished:    s.finished,
		LastError:   s.lastError,
	}
}
