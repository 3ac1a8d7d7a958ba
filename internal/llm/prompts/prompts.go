// Package prompts builds the system prompts for the extraction and
// grading calls from embedded templates.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

// Variant selects how strictly the grading prompts score answers.
type Variant string

const (
	// VariantStrict awards points only for exact rubric matches.
	VariantStrict Variant = "strict"
	// VariantStandard is the default balanced grading variant.
	VariantStandard Variant = "standard"
	// VariantLenient gives benefit of the doubt on wording.
	VariantLenient Variant = "lenient"
)

var validVariants = map[Variant]bool{
	VariantStrict:   true,
	VariantStandard: true,
	VariantLenient:  true,
}

// IsValidVariant checks if a grading variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[Variant(v)]
}

var strictnessClauses = map[Variant]string{
	VariantStrict:   "Grade strictly: award points only for content that exactly matches the rubric. When in doubt, award less and lower your confidence.",
	VariantStandard: "Grade fairly: award points for content that clearly satisfies the rubric.",
	VariantLenient:  "Grade generously: give benefit of the doubt for minor wording differences, but never invent content the student did not write.",
}

var (
	loadOnce      sync.Once
	loadErr       error
	extractTmpl   *template.Template
	gradeTmpl     *template.Template
	singleTmpl    *template.Template
	templateNames = map[string]**template.Template{
		"templates/extract.txt": &extractTmpl,
		"templates/grade.txt":   &gradeTmpl,
		"templates/single.txt":  &singleTmpl,
	}
)

func load() error {
	loadOnce.Do(func() {
		for name, dst := range templateNames {
			content, err := templateFS.ReadFile(name)
			if err != nil {
				loadErr = fmt.Errorf("read prompt template %s: %w", name, err)
				return
			}
			tmpl, err := template.New(name).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", name, err)
				return
			}
			*dst = tmpl
		}
	})
	return loadErr
}

type gradeData struct {
	Strictness string
}

type singleData struct {
	Rubric     string
	Strictness string
}

// BuildExtractSystem returns the system prompt for the extraction pass.
func BuildExtractSystem() (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := extractTmpl.Execute(&buf, nil); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildGradeSystem returns the system prompt for the two-stage grading
// pass using the given strictness variant.
func BuildGradeSystem(v Variant) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	clause, ok := strictnessClauses[v]
	if !ok {
		return "", errors.New("invalid grading variant: " + string(v))
	}
	var buf bytes.Buffer
	if err := gradeTmpl.Execute(&buf, gradeData{Strictness: clause}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildSingleShotSystem returns the system prompt for combined
// extract-and-grade mode, with the rubric inlined.
func BuildSingleShotSystem(v Variant, rubric string) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	clause, ok := strictnessClauses[v]
	if !ok {
		return "", errors.New("invalid grading variant: " + string(v))
	}
	var buf bytes.Buffer
	err := singleTmpl.Execute(&buf, singleData{
		Rubric:     strings.TrimSpace(rubric),
		Strictness: clause,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// maxOCRRunes caps the raw OCR text included in a prompt.
const maxOCRRunes = 20000

// SanitizeOCR trims raw OCR text and truncates pathological inputs so a
// single garbled scan cannot blow the context window.
func SanitizeOCR(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "[No readable text]"
	}
	if utf8.RuneCountInString(text) > maxOCRRunes {
		runes := []rune(text)
		text = string(runes[:maxOCRRunes]) + "\n\n[Text truncated due to length]"
	}
	return text
}
