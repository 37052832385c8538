package inmemdb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core/scorm"
)

type (
	DB struct {
		packages *packageTable
		states   *stateTable
	}

	packageTable struct {
		t     map[string]*scorm.ContentPackage // by id
		units map[string][]scorm.ContentUnit   // by package id
		mutex sync.RWMutex
	}

	stateKey struct {
		learnerID string
		unitID    string
		attempt   int
	}

	stateTable struct {
		t     map[stateKey]*scorm.RuntimeState
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		packages: &packageTable{
			t:     make(map[string]*scorm.ContentPackage),
			units: make(map[string][]scorm.ContentUnit),
		},
		states: &stateTable{t: make(map[stateKey]*scorm.RuntimeState)},
	}
}

type packageRepository struct {
	db *packageTable
}

var _ scorm.PackageRepository = (*packageRepository)(nil)
var _ scorm.PackageWriter = (*packageRepository)(nil)

func NewPackageRepository(db *DB) *packageRepository {
	return &packageRepository{db: db.packages}
}

func (repo *packageRepository) GetPackageByCourse(_ context.Context, courseID string) (scorm.ContentPackage, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, pkg := range repo.db.t {
		if pkg.CourseID == courseID {
			return *pkg, nil
		}
	}
	return scorm.ContentPackage{}, scorm.ErrPackageNotFound
}

func (repo *packageRepository) GetPackage(_ context.Context, packageID string) (scorm.ContentPackage, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if pkg, ok := repo.db.t[packageID]; ok {
		return *pkg, nil
	}
	return scorm.ContentPackage{}, scorm.ErrPackageNotFound
}

func (repo *packageRepository) QueryUnits(_ context.Context, packageID string) ([]scorm.ContentUnit, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	units := append([]scorm.ContentUnit{}, repo.db.units[packageID]...)
	sort.SliceStable(units, func(i, j int) bool { return units[i].Position < units[j].Position })
	return units, nil
}

func (repo *packageRepository) CreatePackage(_ context.Context, pkg scorm.ContentPackage, units []scorm.ContentUnit) (scorm.ContentPackage, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t[pkg.ID]; ok {
		return scorm.ContentPackage{}, errors.Errorf("package %s already exists", pkg.ID)
	}
	for _, p := range repo.db.t {
		if p.CourseID == pkg.CourseID {
			return scorm.ContentPackage{}, errors.Errorf("course %s already has a package", pkg.CourseID)
		}
	}

	if pkg.CreatedAt.IsZero() {
		pkg.CreatedAt = time.Now().UTC()
	}
	stored := make([]scorm.ContentUnit, len(units))
	for i, u := range units {
		u.PackageID = pkg.ID
		stored[i] = u
	}
	repo.db.t[pkg.ID] = &pkg
	repo.db.units[pkg.ID] = stored
	return pkg, nil
}

type stateStore struct {
	db *stateTable
}

var _ scorm.StateStore = (*stateStore)(nil)

func NewStateStore(db *DB) *stateStore {
	return &stateStore{db: db.states}
}

func (store *stateStore) CommitRuntimeState(_ context.Context, learnerID, unitID string, attempt int, snapshot map[string]string) error {
	store.db.mutex.Lock()
	defer store.db.mutex.Unlock()

	model := make(map[string]string, len(snapshot))
	for k, v := range snapshot {
		model[k] = v
	}
	store.db.t[stateKey{learnerID, unitID, attempt}] = &scorm.RuntimeState{
		LearnerID:    learnerID,
		UnitID:       unitID,
		Attempt:      attempt,
		Model:        model,
		LessonStatus: snapshot[scorm.ElemLessonStatus],
		CommittedAt:  time.Now().UTC(),
	}
	return nil
}

func (store *stateStore) LatestRuntimeState(_ context.Context, learnerID, unitID string) (scorm.RuntimeState, error) {
	store.db.mutex.RLock()
	defer store.db.mutex.RUnlock()

	var latest *scorm.RuntimeState
	for key, st := range store.db.t {
		if key.learnerID == learnerID && key.unitID == unitID && (latest == nil || st.Attempt > latest.Attempt) {
			latest = st
		}
	}
	if latest == nil {
		return scorm.RuntimeState{}, scorm.ErrStateNotFound
	}

	st := *latest
	st.Model = make(map[string]string, len(latest.Model))
	for k, v := range latest.Model {
		st.Model[k] = v
	}
	return st, nil
}
