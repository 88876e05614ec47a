// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
)

// defaultPrompt asks for one canonical publisher name and nothing else.
const defaultPrompt = `You normalize book publisher names for a personal library catalog.

Given a publisher string exactly as it appears in a document's metadata, reply with the canonical name of the publishing house: the short, commonly used form without legal suffixes ("Inc.", "Ltd.", "GmbH"), imprint codes, city names, or years. Keep the publisher's own spelling and capitalization. If the string names a software tool rather than a publisher (for example a PDF producer such as "Acrobat Distiller" or "LaTeX with hyperref"), or you cannot tell, reply with UNKNOWN.

Reply with the name only, on a single line, with no quotes or explanation.

Publisher string: {{.Publisher}}
`

// unknownAnswer is the reply the default prompt asks for when the model
// cannot name a publisher.
const unknownAnswer = "UNKNOWN"

// promptData is the value passed to the prompt template.
type promptData struct {
	Publisher string
}

// LoadPrompt parses the prompt template at path, or the built-in prompt when
// path is empty. A custom prompt that never references {{.Publisher}} gets
// the publisher appended on its own line.
func LoadPrompt(path string) (*template.Template, error) {
	text := defaultPrompt
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading prompt file: %w", err)
		}
		text = string(data)
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("prompt file %s is empty", path)
		}
		if !strings.Contains(text, "{{") {
			text = strings.TrimRight(text, "\n") + "\n\nPublisher string: {{.Publisher}}\n"
		}
	}

	tmpl, err := template.New("publisher").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing prompt template: %w", err)
	}
	return tmpl, nil
}

func renderPrompt(tmpl *template.Template, publisher string) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, promptData{Publisher: publisher}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// parseAnswer reduces a model reply to a bare canonical name. It returns ""
// when the reply carries no usable name.
func parseAnswer(reply string) string {
	line := strings.TrimSpace(reply)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	line = strings.TrimPrefix(line, "Canonical name:")
	line = strings.Trim(strings.TrimSpace(line), "\"'`*")
	line = strings.Join(strings.Fields(line), " ")
	if strings.EqualFold(line, unknownAnswer) {
		return ""
	}
	return line
}
