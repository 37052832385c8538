package scorm

import (
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core"
)

const ManifestName = "imsmanifest.xml"

var ErrInvalidManifest = errors.New("invalid package manifest")

type (
	manifest struct {
		XMLName  xml.Name `xml:"manifest"`
		Metadata struct {
			SchemaVersion string `xml:"schemaversion"`
		} `xml:"metadata"`
		Organizations struct {
			Default       string                 `xml:"default,attr"`
			Organizations []manifestOrganization `xml:"organization"`
		} `xml:"organizations"`
		Resources struct {
			Base      string             `xml:"base,attr"`
			Resources []manifestResource `xml:"resource"`
		} `xml:"resources"`
	}

	manifestOrganization struct {
		Identifier string         `xml:"identifier,attr"`
		Title      string         `xml:"title"`
		Items      []manifestItem `xml:"item"`
	}

	manifestItem struct {
		Identifier    string         `xml:"identifier,attr"`
		IdentifierRef string         `xml:"identifierref,attr"`
		Parameters    string         `xml:"parameters,attr"`
		IsVisible     string         `xml:"isvisible,attr"`
		Title         string         `xml:"title"`
		Items         []manifestItem `xml:"item"`
	}

	manifestResource struct {
		Identifier string `xml:"identifier,attr"`
		ScormType  string `xml:"scormtype,attr"`
		Href       string `xml:"href,attr"`
		Base       string `xml:"base,attr"`
	}
)

// ParseManifest reads an imsmanifest.xml and returns the package it describes for courseID.
// Units are the launchable items of the default organization in document order; the first one
// is the entry point. Unit ids are prefixed with courseID so they stay unique across packages.
func ParseManifest(r io.Reader, courseID, basePath string) (ContentPackage, []ContentUnit, error) {
	var m manifest
	if err := xml.NewDecoder(r).Decode(&m); err != nil {
		return ContentPackage{}, nil, errors.Wrap(ErrInvalidManifest, err.Error())
	}

	org, ok := m.organization()
	if !ok {
		return ContentPackage{}, nil, errors.Wrap(ErrInvalidManifest, "no organization")
	}
	resources := make(map[string]manifestResource, len(m.Resources.Resources))
	for _, res := range m.Resources.Resources {
		resources[res.Identifier] = res
	}

	pkg := ContentPackage{
		ID:       uuid.New().String(),
		CourseID: courseID,
		Title:    core.CleanString(org.Title),
		BasePath: basePath,
		Version:  DefaultFormatVersion,
	}
	if v := core.CleanString(m.Metadata.SchemaVersion); v != "" {
		pkg.Version = v
	}

	var units []ContentUnit
	var walk func(items []manifestItem) error
	walk = func(items []manifestItem) error {
		for _, item := range items {
			if res, ok := resources[item.IdentifierRef]; ok && res.Href != "" && !strings.EqualFold(res.ScormType, "asset") {
				launch := path.Join(m.Resources.Base, res.Base, res.Href) + itemParameters(item.Parameters)
				if _, err := SanitizeLaunchPath(launch); err != nil {
					return errors.Wrapf(err, "item %s", item.Identifier)
				}
				units = append(units, ContentUnit{
					ID:           fmt.Sprintf("%s:%s", courseID, item.Identifier),
					PackageID:    pkg.ID,
					Title:        core.CleanString(item.Title),
					LaunchPath:   launch,
					IsEntryPoint: len(units) == 0,
					Position:     len(units),
				})
			}
			if err := walk(item.Items); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(org.Items); err != nil {
		return ContentPackage{}, nil, err
	}
	if len(units) == 0 {
		return ContentPackage{}, nil, ErrNoEntryUnit
	}
	return pkg, units, nil
}

func (m manifest) organization() (manifestOrganization, bool) {
	orgs := m.Organizations.Organizations
	for _, org := range orgs {
		if org.Identifier == m.Organizations.Default {
			return org, true
		}
	}
	if len(orgs) > 0 {
		return orgs[0], true
	}
	return manifestOrganization{}, false
}

func itemParameters(params string) string {
	params = core.CleanString(params)
	if params == "" || strings.HasPrefix(params, "?") || strings.HasPrefix(params, "#") {
		return params
	}
	return "?" + params
}
