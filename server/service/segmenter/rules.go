package segmenter

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// IntentRule maps a pattern over the episode's URLs and window titles to an
// intent label. Rules are evaluated in order; first match wins.
type IntentRule struct {
	Pattern string `yaml:"pattern"`
	Intent  string `yaml:"intent"`

	re *regexp.Regexp
}

// Rules holds the boundary and intent classification configuration.
type Rules struct {
	// InactivityGapMs closes an episode when the gap between consecutive
	// observations exceeds it. Zero means the 5-minute default.
	InactivityGapMs int64 `yaml:"inactivity_gap_ms"`

	// UnrelatedApps is a denylist of utility apps whose activation always
	// ends the current episode (matched against bundle id or app name,
	// case-insensitive substring).
	UnrelatedApps []string `yaml:"unrelated_apps"`

	// BrowserApps lists apps considered interchangeable browsers; a switch
	// between two of them is never an episode boundary on its own.
	BrowserApps []string `yaml:"browser_apps"`

	IntentRules []IntentRule `yaml:"intent_rules"`
}

// DefaultRules returns the built-in rule set.
func DefaultRules() *Rules {
	r := &Rules{
		InactivityGapMs: (5 * time.Minute).Milliseconds(),
		UnrelatedApps: []string{
			"com.apple.finder",
			"com.apple.music",
			"com.spotify.client",
			"com.apple.tv",
			"com.apple.systempreferences",
			"vlc",
		},
		BrowserApps: []string{
			"com.google.chrome",
			"com.apple.safari",
			"org.mozilla.firefox",
			"com.microsoft.edgemac",
			"company.thebrowser.browser",
		},
		IntentRules: []IntentRule{
			{Pattern: `gmail|mail\.google`, Intent: "email_interaction"},
			{Pattern: `outlook.*mail|mail\.yahoo|proton\.me`, Intent: "email_interaction"},
			{Pattern: `calendar\.google|outlook.*calendar|fantastical`, Intent: "calendar_planning"},
			{Pattern: `notion|obsidian|evernote|onenote|bear`, Intent: "note_taking"},
			{Pattern: `github.com.*pull|gitlab.*merge_requests`, Intent: "code_review"},
			{Pattern: `docs\.google|overleaf|\.docx`, Intent: "document_editing"},
			{Pattern: `stackoverflow|wikipedia|arxiv|scholar\.google`, Intent: "research"},
		},
	}
	if err := r.Compile(); err != nil {
		// Built-in patterns are fixed; a failure here is a programming error.
		panic(err)
	}
	return r
}

// LoadRules reads a rules file, overriding the defaults wholesale.
func LoadRules(path string) (*Rules, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read rules file %s", path)
	}
	var rules Rules
	if err := yaml.Unmarshal(content, &rules); err != nil {
		return nil, errors.Wrapf(err, "failed to decode rules file %s", path)
	}
	if rules.InactivityGapMs <= 0 {
		rules.InactivityGapMs = (5 * time.Minute).Milliseconds()
	}
	if err := rules.Compile(); err != nil {
		return nil, errors.Wrapf(err, "invalid rules file %s", path)
	}
	return &rules, nil
}

// Compile compiles the intent patterns. Patterns are matched
// case-insensitively.
func (r *Rules) Compile() error {
	for i := range r.IntentRules {
		re, err := regexp.Compile("(?i)" + r.IntentRules[i].Pattern)
		if err != nil {
			return errors.Wrapf(err, "invalid intent pattern %q", r.IntentRules[i].Pattern)
		}
		r.IntentRules[i].re = re
	}
	return nil
}

// Classify returns the intent label for the given text, or the fallback
// when no rule matches.
func (r *Rules) Classify(text string) string {
	for i := range r.IntentRules {
		if r.IntentRules[i].re.MatchString(text) {
			return r.IntentRules[i].Intent
		}
	}
	return "general_activity"
}

func (r *Rules) isUnrelatedApp(identity string) bool {
	identity = strings.ToLower(identity)
	for _, app := range r.UnrelatedApps {
		if strings.Contains(identity, app) {
			return true
		}
	}
	return false
}

func (r *Rules) isBrowser(identity string) bool {
	identity = strings.ToLower(identity)
	for _, app := range r.BrowserApps {
		if strings.Contains(identity, app) {
			return true
		}
	}
	return false
}
