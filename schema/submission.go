package schema

import (
	"fmt"
	"strings"
)

// Submission is the unit of work handed to the coordinator.
type Submission struct {
	Source          Source   `json:"source"`
	SourceProblemID string   `json:"sourceId"`
	Code            string   `json:"code"`
	Language        Language `json:"language"`
}

// NormalizeLanguage matches a language name case-insensitively.
func NormalizeLanguage(value string) (Language, error) {
	trimmed := strings.TrimSpace(value)
	for _, lang := range Languages {
		if strings.EqualFold(trimmed, string(lang)) {
			return lang, nil
		}
	}
	switch strings.ToLower(trimmed) {
	case "python3", "py":
		return LanguagePython, nil
	case "cpp", "c++17":
		return LanguageCPP, nil
	case "node", "javascript", "js":
		return LanguageNode, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, value)
}

// NormalizeSubmission trims identifiers and validates required fields.
func NormalizeSubmission(sub Submission) (Submission, error) {
	sub.Source = Source(strings.TrimSpace(string(sub.Source)))
	if sub.Source == "" {
		return Submission{}, fmt.Errorf("%w: source is required", ErrInvalidRequest)
	}
	sub.SourceProblemID = strings.TrimSpace(sub.SourceProblemID)
	if sub.SourceProblemID == "" {
		return Submission{}, fmt.Errorf("%w: sourceId is required", ErrInvalidRequest)
	}
	if strings.ContainsAny(sub.SourceProblemID, "/?#") {
		return Submission{}, fmt.Errorf("%w: sourceId %q is not a problem id", ErrInvalidRequest, sub.SourceProblemID)
	}
	if strings.TrimSpace(sub.Code) == "" {
		return Submission{}, fmt.Errorf("%w: code is required", ErrInvalidRequest)
	}
	lang, err := NormalizeLanguage(string(sub.Language))
	if err != nil {
		return Submission{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	sub.Language = lang
	return sub, nil
}
