package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core/scorm"
	"github.com/trezcool/masomo-scorm/services/content"
)

type contentApi struct {
	packages scorm.PackageRepository
	store    contentsvc.Store
}

// registerContentAPI serves package assets at /<route>/<packageId>/<path>, where launch URLs point.
func registerContentAPI(app *echo.Echo, route string, packages scorm.PackageRepository, store contentsvc.Store) {
	api := contentApi{
		packages: packages,
		store:    store,
	}

	cg := app.Group("/"+strings.Trim(route, "/"), brotliMiddleware())
	cg.GET("/:packageId/*", api.serve)
	cg.HEAD("/:packageId/*", api.serve)
}

func (api *contentApi) serve(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	pkg, err := api.packages.GetPackage(reqCtx, ctx.Param("packageId"))
	if err != nil {
		return errors.Wrap(err, "finding package")
	}
	asset, err := api.store.Open(reqCtx, pkg, ctx.Param("*"))
	if err != nil {
		return errors.Wrap(err, "opening asset")
	}
	defer func() { _ = asset.Close() }()

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, asset.ContentType)
	http.ServeContent(res, ctx.Request(), asset.Name, asset.ModTime, asset)
	return nil
}
