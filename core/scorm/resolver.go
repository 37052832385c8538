package scorm

import (
	"context"

	"github.com/pkg/errors"
)

// Resolver maps a course to its content package and the unit to launch first.
type Resolver struct {
	repo  PackageRepository
	route string
}

func NewResolver(repo PackageRepository, contentRoute string) *Resolver {
	return &Resolver{repo: repo, route: contentRoute}
}

// Resolve returns ErrPackageNotFound or ErrNoEntryUnit (possibly wrapped) when the course cannot be played.
func (r *Resolver) Resolve(ctx context.Context, courseID string) (Resolution, error) {
	pkg, err := r.repo.GetPackageByCourse(ctx, courseID)
	if err != nil {
		if errors.Cause(err) == ErrPackageNotFound {
			return Resolution{}, ErrPackageNotFound
		}
		return Resolution{}, errors.Wrap(err, "finding package by course")
	}

	units, err := r.repo.QueryUnits(ctx, pkg.ID)
	if err != nil {
		return Resolution{}, errors.Wrap(err, "querying package units")
	}
	if len(units) == 0 {
		return Resolution{}, ErrNoEntryUnit
	}

	return Resolution{
		Package:      pkg,
		Units:        units,
		InitialIndex: entryIndex(units),
	}, nil
}

// LaunchURL builds the deliverable URL of one unit of pkg.
func (r *Resolver) LaunchURL(pkg ContentPackage, unit ContentUnit) (string, error) {
	return LaunchURL(r.route, pkg.ID, unit.LaunchPath)
}

// entryIndex returns the first unit flagged as entry point, the first unit otherwise.
func entryIndex(units []ContentUnit) int {
	for i, u := range units {
		if u.IsEntryPoint {
			return i
		}
	}
	return 0
}
