package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
)

const (
	packageColumns = `id, course_id, title, base_path, version, created_at`
	unitColumns    = `id, package_id, title, launch_path, is_entry_point, position`
)

type packageRepository struct {
	db core.DB
}

var _ scorm.PackageRepository = (*packageRepository)(nil)
var _ scorm.PackageWriter = (*packageRepository)(nil)

func NewPackageRepository(db core.DB) *packageRepository {
	return &packageRepository{db: db}
}

func (repo *packageRepository) GetPackageByCourse(ctx context.Context, courseID string) (scorm.ContentPackage, error) {
	return repo.getPackage(ctx, `SELECT `+packageColumns+` FROM content_package WHERE course_id = $1`, courseID)
}

// GetPackage looks the package up by id. Ids come from public content URLs: anything
// that is not a uuid is simply not found.
func (repo *packageRepository) GetPackage(ctx context.Context, packageID string) (scorm.ContentPackage, error) {
	if _, err := uuid.Parse(packageID); err != nil {
		return scorm.ContentPackage{}, scorm.ErrPackageNotFound
	}
	return repo.getPackage(ctx, `SELECT `+packageColumns+` FROM content_package WHERE id = $1`, packageID)
}

func (repo *packageRepository) getPackage(ctx context.Context, query, arg string) (scorm.ContentPackage, error) {
	var pkg scorm.ContentPackage
	if err := sqlx.GetContext(ctx, repo.db, &pkg, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return scorm.ContentPackage{}, scorm.ErrPackageNotFound
		}
		return scorm.ContentPackage{}, errors.Wrap(err, "selecting package")
	}
	return pkg, nil
}

func (repo *packageRepository) QueryUnits(ctx context.Context, packageID string) ([]scorm.ContentUnit, error) {
	units := make([]scorm.ContentUnit, 0)
	err := sqlx.SelectContext(ctx, repo.db, &units,
		`SELECT `+unitColumns+` FROM content_unit WHERE package_id = $1 ORDER BY position, id`, packageID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting units")
	}
	return units, nil
}

// CreatePackage inserts the package and its units in one transaction.
func (repo *packageRepository) CreatePackage(ctx context.Context, pkg scorm.ContentPackage, units []scorm.ContentUnit) (scorm.ContentPackage, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return scorm.ContentPackage{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if pkg.CreatedAt.IsZero() {
		pkg.CreatedAt = time.Now().UTC()
	}
	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO content_package (`+packageColumns+`)
		VALUES (:id, :course_id, :title, :base_path, :version, :created_at)`, pkg)
	if err != nil {
		return scorm.ContentPackage{}, errors.Wrap(err, "inserting package")
	}

	for _, u := range units {
		u.PackageID = pkg.ID
		_, err = tx.NamedExecContext(ctx,
			`INSERT INTO content_unit (`+unitColumns+`)
			VALUES (:id, :package_id, :title, :launch_path, :is_entry_point, :position)`, u)
		if err != nil {
			return scorm.ContentPackage{}, errors.Wrapf(err, "inserting unit %s", u.ID)
		}
	}

	if err = tx.Commit(); err != nil {
		return scorm.ContentPackage{}, errors.Wrap(err, "committing transaction")
	}
	return pkg, nil
}
