// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extractor

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/pdiddy/libshelf/pkg/types"
)

const containerPath = "META-INF/container.xml"

// container is META-INF/container.xml; it names the OPF package document.
type container struct {
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

// opfPackage holds the Dublin Core fields we read from the OPF.
type opfPackage struct {
	Metadata struct {
		Titles     []string `xml:"title"`
		Creators   []string `xml:"creator"`
		Publishers []string `xml:"publisher"`
	} `xml:"metadata"`
}

// readEPUB reads dc:title, dc:creator and dc:publisher from the EPUB's
// package document.
func readEPUB(filePath string) (types.Extracted, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return types.Extracted{}, fmt.Errorf("opening epub: %w", err)
	}
	defer zr.Close()

	opfFile, err := findOPF(&zr.Reader)
	if err != nil {
		return types.Extracted{}, err
	}

	rc, err := opfFile.Open()
	if err != nil {
		return types.Extracted{}, fmt.Errorf("opening %s: %w", opfFile.Name, err)
	}
	defer rc.Close()

	return parseOPF(rc)
}

// findOPF locates the package document via container.xml, falling back to
// the first .opf entry in the archive.
func findOPF(zr *zip.Reader) (*zip.File, error) {
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	if cf, ok := files[containerPath]; ok {
		rc, err := cf.Open()
		if err == nil {
			var c container
			decodeErr := xml.NewDecoder(rc).Decode(&c)
			rc.Close()
			if decodeErr == nil {
				for _, rf := range c.Rootfiles {
					if f, ok := files[path.Clean(rf.FullPath)]; ok {
						return f, nil
					}
				}
			}
		}
	}

	for _, f := range zr.File {
		if strings.EqualFold(path.Ext(f.Name), ".opf") {
			return f, nil
		}
	}
	return nil, errors.New("no OPF package document found")
}

func parseOPF(r io.Reader) (types.Extracted, error) {
	var pkg opfPackage
	if err := xml.NewDecoder(r).Decode(&pkg); err != nil {
		return types.Extracted{}, fmt.Errorf("parsing OPF: %w", err)
	}

	ex := types.Extracted{Authors: pkg.Metadata.Creators}
	if len(pkg.Metadata.Titles) > 0 {
		ex.Title = pkg.Metadata.Titles[0]
	}
	if len(pkg.Metadata.Publishers) > 0 {
		ex.Publisher = pkg.Metadata.Publishers[0]
	}
	return ex, nil
}
