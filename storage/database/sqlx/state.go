package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
)

type stateRow struct {
	LearnerID    string         `db:"learner_id"`
	UnitID       string         `db:"unit_id"`
	Attempt      int            `db:"attempt"`
	Model        types.JSONText `db:"model"`
	LessonStatus null.String    `db:"lesson_status"`
	CommittedAt  time.Time      `db:"committed_at"`
}

type stateStore struct {
	db  core.DB
	now func() time.Time
}

var _ scorm.StateStore = (*stateStore)(nil)

func NewStateStore(db core.DB) *stateStore {
	return &stateStore{db: db, now: time.Now}
}

// CommitRuntimeState upserts the snapshot of (learner, unit, attempt).
func (store *stateStore) CommitRuntimeState(ctx context.Context, learnerID, unitID string, attempt int, snapshot map[string]string) error {
	model, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "encoding model")
	}
	status := snapshot[scorm.ElemLessonStatus]

	row := stateRow{
		LearnerID:    learnerID,
		UnitID:       unitID,
		Attempt:      attempt,
		Model:        types.JSONText(model),
		LessonStatus: null.NewString(status, status != ""),
		CommittedAt:  store.now().UTC(),
	}
	_, err = sqlx.NamedExecContext(ctx, store.db, `
		INSERT INTO runtime_state (learner_id, unit_id, attempt, model, lesson_status, committed_at)
		VALUES (:learner_id, :unit_id, :attempt, :model, :lesson_status, :committed_at)
		ON CONFLICT (learner_id, unit_id, attempt) DO UPDATE SET
			model = EXCLUDED.model,
			lesson_status = EXCLUDED.lesson_status,
			committed_at = EXCLUDED.committed_at`, row)
	if err != nil {
		return errors.Wrap(err, "upserting runtime state")
	}
	return nil
}

func (store *stateStore) LatestRuntimeState(ctx context.Context, learnerID, unitID string) (scorm.RuntimeState, error) {
	var row stateRow
	err := sqlx.GetContext(ctx, store.db, &row, `
		SELECT learner_id, unit_id, attempt, model, lesson_status, committed_at
		FROM runtime_state
		WHERE learner_id = $1 AND unit_id = $2
		ORDER BY attempt DESC
		LIMIT 1`, learnerID, unitID)
	if err != nil {
		if err == sql.ErrNoRows {
			return scorm.RuntimeState{}, scorm.ErrStateNotFound
		}
		return scorm.RuntimeState{}, errors.Wrap(err, "selecting runtime state")
	}

	model := make(map[string]string)
	if err = row.Model.Unmarshal(&model); err != nil {
		return scorm.RuntimeState{}, errors.Wrap(err, "decoding model")
	}
	return scorm.RuntimeState{
		LearnerID:    row.LearnerID,
		UnitID:       row.UnitID,
		Attempt:      row.Attempt,
		Model:        model,
		LessonStatus: row.LessonStatus.String,
		CommittedAt:  row.CommittedAt,
	}, nil
}
