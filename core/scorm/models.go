package scorm

import (
	"context"
	"errors"
	"time"
)

var (
	// errors
	ErrPackageNotFound = errors.New("package not found")
	ErrNoEntryUnit     = errors.New("package has no content unit to launch")
	ErrStateNotFound   = errors.New("runtime state not found")
	ErrPlayerNotFound  = errors.New("player not found")
)

// Lesson statuses of the SCORM 1.2 vocabulary.
const (
	StatusPassed       = "passed"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
	StatusIncomplete   = "incomplete"
	StatusBrowsed      = "browsed"
	StatusNotAttempted = "not attempted"
)

const DefaultFormatVersion = "1.2"

// ContentPackage is a bundled SCORM package, served as static assets under BasePath.
type ContentPackage struct {
	ID        string    `json:"id" db:"id"`
	CourseID  string    `json:"course_id" db:"course_id"`
	Title     string    `json:"title" db:"title"`
	BasePath  string    `json:"base_path" db:"base_path"`
	Version   string    `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ContentUnit is a SCO: an independently launchable resource of a package.
type ContentUnit struct {
	ID           string `json:"id" db:"id"`
	PackageID    string `json:"package_id" db:"package_id"`
	Title        string `json:"title" db:"title"`
	LaunchPath   string `json:"launch_path" db:"launch_path"`
	IsEntryPoint bool   `json:"is_entry_point" db:"is_entry_point"`
	Position     int    `json:"position" db:"position"`
}

// Learner is the person the runtime reports progress for.
type Learner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Resolution is what the content resolver hands to the player. Treated as immutable.
type Resolution struct {
	Package      ContentPackage
	Units        []ContentUnit
	InitialIndex int
}

// RuntimeState is the persisted model snapshot of one learner attempt on a unit.
type RuntimeState struct {
	LearnerID    string
	UnitID       string
	Attempt      int
	Model        map[string]string
	LessonStatus string
	CommittedAt  time.Time
}

// IsFinal reports whether the attempt reached a status that starts a new attempt on next launch.
func (st RuntimeState) IsFinal() bool {
	switch st.LessonStatus {
	case StatusPassed, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type (
	// PackageRepository looks up the packages authored elsewhere.
	PackageRepository interface {
		// GetPackageByCourse returns ErrPackageNotFound when no package is linked to the course.
		GetPackageByCourse(ctx context.Context, courseID string) (ContentPackage, error)
		GetPackage(ctx context.Context, packageID string) (ContentPackage, error)
		// QueryUnits returns the package units ordered by position.
		QueryUnits(ctx context.Context, packageID string) ([]ContentUnit, error)
	}

	// PackageWriter registers packages imported by the admin tools.
	PackageWriter interface {
		CreatePackage(ctx context.Context, pkg ContentPackage, units []ContentUnit) (ContentPackage, error)
	}

	// StateStore persists runtime state snapshots.
	StateStore interface {
		CommitRuntimeState(ctx context.Context, learnerID, unitID string, attempt int, snapshot map[string]string) error
		// LatestRuntimeState returns ErrStateNotFound when the learner never committed on the unit.
		LatestRuntimeState(ctx context.Context, learnerID, unitID string) (RuntimeState, error)
	}
)

func copyModel(m map[string]string) map[string]string {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
