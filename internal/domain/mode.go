package domain

import "fmt"

// ModeKey selects which producer answers a request.
type ModeKey string

const (
	ModeWebSearch          ModeKey = "webSearch"
	ModeAcademicSearch     ModeKey = "academicSearch"
	ModeWritingAssistant   ModeKey = "writingAssistant"
	ModeWolframAlphaSearch ModeKey = "wolframAlphaSearch"
	ModeYoutubeSearch      ModeKey = "youtubeSearch"
	ModeRedditSearch       ModeKey = "redditSearch"
)

// AllModes lists every known mode in display order.
var AllModes = []ModeKey{
	ModeWebSearch,
	ModeAcademicSearch,
	ModeWritingAssistant,
	ModeWolframAlphaSearch,
	ModeYoutubeSearch,
	ModeRedditSearch,
}

// ParseModeKey maps a wire value onto the closed set of modes.
func ParseModeKey(s string) (ModeKey, error) {
	switch ModeKey(s) {
	case ModeWebSearch, ModeAcademicSearch, ModeWritingAssistant,
		ModeWolframAlphaSearch, ModeYoutubeSearch, ModeRedditSearch:
		return ModeKey(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// OptimizationMode is an opaque hint passed through to producers.
type OptimizationMode string

const (
	OptimizeSpeed    OptimizationMode = "speed"
	OptimizeBalanced OptimizationMode = "balanced"
	OptimizeQuality  OptimizationMode = "quality"
)
