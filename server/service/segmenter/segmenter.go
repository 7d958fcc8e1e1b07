// Package segmenter decides where one unit of user intent ends and turns
// the buffered observations into a classified episode.
package segmenter

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/conductor-hq/conductor/internal/util"
	"github.com/conductor-hq/conductor/store"
)

const maxPreviewLen = 500

// Segmenter applies the boundary and classification rules.
type Segmenter struct {
	rules *Rules
}

// New creates a segmenter over the given rules.
func New(rules *Rules) *Segmenter {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Segmenter{rules: rules}
}

// appIdentity prefers the bundle id over the display name; the sensor may
// deliver either.
func appIdentity(obs *store.Observation) string {
	if obs.BundleID != "" {
		return obs.BundleID
	}
	return obs.AppName
}

// ShouldClose reports whether the arrival of next ends the episode whose
// newest buffered observation is prev.
func (s *Segmenter) ShouldClose(prev, next *store.Observation) bool {
	if prev == nil || next == nil {
		return false
	}
	// Inactivity closes the episode regardless of application identity.
	if next.Timestamp-prev.Timestamp > s.rules.InactivityGapMs {
		return true
	}
	prevApp, nextApp := appIdentity(prev), appIdentity(next)
	if prevApp == "" || nextApp == "" || strings.EqualFold(prevApp, nextApp) {
		return false
	}
	return !s.related(prevApp, nextApp)
}

// related reports whether switching from app a to app b continues the same
// unit of intent: b is not a known unrelated utility, and the two share a
// vendor prefix or are both browsers.
func (s *Segmenter) related(a, b string) bool {
	if s.rules.isUnrelatedApp(b) {
		return false
	}
	if vendorPrefix(a) != "" && vendorPrefix(a) == vendorPrefix(b) {
		return true
	}
	return s.rules.isBrowser(a) && s.rules.isBrowser(b)
}

// vendorPrefix extracts the reverse-DNS vendor from a bundle id
// ("com.google.Chrome" -> "com.google"). Non-bundle identities have none.
func vendorPrefix(identity string) string {
	parts := strings.Split(strings.ToLower(identity), ".")
	if len(parts) < 3 {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// Segment interprets the buffered observations as one closed episode.
// Returns nil for an empty buffer. The caller is responsible for having
// cleared the buffer (see SessionContext.Drain).
func (s *Segmenter) Segment(buffer []*store.Observation) *store.Episode {
	if len(buffer) == 0 {
		return nil
	}

	ids := make([]string, 0, len(buffer))
	apps := make([]string, 0)
	urls := make([]string, 0)
	seenApps := map[string]bool{}
	seenURLs := map[string]bool{}
	var classifyParts []string
	var excerpts []string

	for _, obs := range buffer {
		ids = append(ids, obs.ID)
		if obs.AppName != "" && !seenApps[obs.AppName] {
			seenApps[obs.AppName] = true
			apps = append(apps, obs.AppName)
		}
		if obs.URL != "" {
			classifyParts = append(classifyParts, obs.URL)
			if !seenURLs[obs.URL] {
				seenURLs[obs.URL] = true
				urls = append(urls, obs.URL)
			}
		}
		if obs.WindowTitle != "" {
			classifyParts = append(classifyParts, obs.WindowTitle)
		}
		if obs.Payload != "" {
			excerpts = append(excerpts, obs.Payload)
		}
	}

	now := time.Now().UnixMilli()
	episode := &store.Episode{
		ID:             util.GenUID(),
		CreatedTs:      now,
		UpdatedTs:      now,
		ObservationIDs: ids,
		Intent:         s.rules.Classify(strings.Join(classifyParts, " ")),
		Context: store.EpisodeContext{
			Apps:       apps,
			URLs:       urls,
			DurationMs: buffer[len(buffer)-1].Timestamp - buffer[0].Timestamp,
		},
		Status: store.EpisodeClosed,
	}

	if len(excerpts) > 0 {
		preview := strings.Join(excerpts, " ")
		if len(preview) > maxPreviewLen {
			// Back off to a rune boundary.
			cut := maxPreviewLen
			for cut > 0 && !utf8.RuneStart(preview[cut]) {
				cut--
			}
			preview = preview[:cut]
		}
		episode.Context.ContentPreview = preview
	}

	return episode
}
