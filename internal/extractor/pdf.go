// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extractor

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/pdiddy/libshelf/pkg/types"
)

var disablePDFConfigDir sync.Once

// readPDF reads the document Info dictionary. PDFs carry no publisher
// field, so the Producer entry stands in for it.
func readPDF(path string) (types.Extracted, error) {
	disablePDFConfigDir.Do(api.DisableConfigDir)

	f, err := os.Open(path)
	if err != nil {
		return types.Extracted{}, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(f, conf)
	if err != nil {
		return types.Extracted{}, fmt.Errorf("pdfcpu read: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return types.Extracted{}, fmt.Errorf("pdfcpu validate: %w", err)
	}

	return pdfInfo(ctx.Title, ctx.Author, ctx.Producer), nil
}

// pdfInfo maps Info dictionary strings onto Extracted. Multiple authors
// are conventionally separated by semicolons.
func pdfInfo(title, author, producer string) types.Extracted {
	var authors []string
	for _, a := range strings.Split(author, ";") {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}
	return types.Extracted{
		Title:     strings.TrimSpace(title),
		Authors:   authors,
		Publisher: strings.TrimSpace(producer),
	}
}
