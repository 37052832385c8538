package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/masomo-scorm/core/scorm"
	"github.com/trezcool/masomo-scorm/storage/database"
)

// PrepareDB opens the database at TEST_DATABASE_URL, migrates it and empties every table.
// The test is skipped when the variable is not set.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.OpenURL(dbURL)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	if _, err = db.Exec(`TRUNCATE runtime_state, content_unit, content_package`); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

// CreatePackage registers a package for courseID with units at the given launch paths.
// The first unit is the entry point.
func CreatePackage(t *testing.T, repo scorm.PackageWriter, courseID string, launchPaths ...string) (scorm.ContentPackage, []scorm.ContentUnit) {
	t.Helper()
	pkg := scorm.ContentPackage{
		ID:        uuid.New().String(),
		CourseID:  courseID,
		Title:     "Package of " + courseID,
		BasePath:  courseID,
		Version:   scorm.DefaultFormatVersion,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	units := make([]scorm.ContentUnit, len(launchPaths))
	for i, p := range launchPaths {
		units[i] = scorm.ContentUnit{
			ID:           fmt.Sprintf("%s-sco%d", courseID, i+1),
			PackageID:    pkg.ID,
			Title:        fmt.Sprintf("SCO %d", i+1),
			LaunchPath:   p,
			IsEntryPoint: i == 0,
			Position:     i,
		}
	}
	pkg, err := repo.CreatePackage(context.Background(), pkg, units)
	if err != nil {
		t.Fatalf("CreatePackage() failed: %v", err)
	}
	return pkg, units
}

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records log calls instead of printing them.
type Logger struct {
	mu      sync.Mutex
	Entries []LogEntry
}

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

// Count returns how many entries were logged at level.
func (l *Logger) Count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.Entries {
		if e.Level == level {
			n++
		}
	}
	return n
}
