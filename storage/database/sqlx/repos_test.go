package sqlxrepos

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-scorm/core/scorm"
	"github.com/trezcool/masomo-scorm/tests"
)

func TestPackageRepository(t *testing.T) {
	db := testutil.PrepareDB(t)
	repo := NewPackageRepository(db)
	ctx := context.Background()

	pkg, units := testutil.CreatePackage(t, repo, "course-1", "index.html", "m2/start.html")

	got, err := repo.GetPackageByCourse(ctx, "course-1")
	require.NoError(t, err)
	assert.Equal(t, pkg.ID, got.ID)
	assert.Equal(t, pkg.BasePath, got.BasePath)

	got, err = repo.GetPackage(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, "course-1", got.CourseID)

	gotUnits, err := repo.QueryUnits(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, units, gotUnits)

	_, err = repo.GetPackageByCourse(ctx, "nope")
	assert.Equal(t, scorm.ErrPackageNotFound, err)

	_, err = repo.GetPackage(ctx, "0b6c3f5e-3f0e-4c38-9a52-2f4f0f3c8e11")
	assert.Equal(t, scorm.ErrPackageNotFound, err)

	_, err = repo.CreatePackage(ctx, pkg, nil)
	assert.Error(t, err, "course ids are unique")
}

func TestPackageRepository_GetPackageMalformedID(t *testing.T) {
	// rejected before any query is sent
	repo := NewPackageRepository(nil)

	tests := []string{"", "nope", "not-a-uuid", "../index.html", "7d7f9bb0-12a4-4f4e-9c0c"}
	for _, id := range tests {
		t.Run(id, func(t *testing.T) {
			_, err := repo.GetPackage(context.Background(), id)
			assert.Equal(t, scorm.ErrPackageNotFound, err)
		})
	}
}

func TestStateStore(t *testing.T) {
	db := testutil.PrepareDB(t)
	store := NewStateStore(db)
	ctx := context.Background()

	_, err := store.LatestRuntimeState(ctx, "l1", "A")
	assert.Equal(t, scorm.ErrStateNotFound, err)

	require.NoError(t, store.CommitRuntimeState(ctx, "l1", "A", 1, map[string]string{
		scorm.ElemLessonLocation: "p1",
	}))
	require.NoError(t, store.CommitRuntimeState(ctx, "l1", "A", 1, map[string]string{
		scorm.ElemLessonLocation: "p2",
		scorm.ElemLessonStatus:   scorm.StatusPassed,
	}))
	require.NoError(t, store.CommitRuntimeState(ctx, "l1", "A", 2, map[string]string{
		scorm.ElemLessonLocation: "p3",
	}))

	st, err := store.LatestRuntimeState(ctx, "l1", "A")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Attempt)
	assert.Equal(t, "p3", st.Model[scorm.ElemLessonLocation])
	assert.Equal(t, "", st.LessonStatus)

	var status string
	require.NoError(t, db.Get(&status, `SELECT lesson_status FROM runtime_state WHERE learner_id = 'l1' AND attempt = 1`))
	assert.Equal(t, scorm.StatusPassed, status, "commits of the same attempt are upserted")
}
