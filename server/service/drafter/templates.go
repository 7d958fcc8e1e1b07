package drafter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/conductor-hq/conductor/store"
)

func registerBuiltins(d *Drafter) {
	// Registration of the fixed built-ins cannot collide.
	_ = d.Register("email_interaction", Template{
		ActionType: store.ActionEmailDraft,
		Render:     renderEmailDraft,
	})
	_ = d.Register("calendar_planning", Template{
		ActionType: store.ActionCalendarEvent,
		Render:     renderCalendarEvent,
	})
	_ = d.Register("note_taking", Template{
		ActionType: store.ActionNotesPage,
		Render:     renderNotesPage,
	})
	_ = d.Register("research", Template{
		ActionType: store.ActionNotesPage,
		Render:     renderResearchNotes,
	})
}

func renderEmailDraft(episode *store.Episode) (string, string, string) {
	title := "Draft a reply"
	summary := fmt.Sprintf("You were reading mail in %s", appsLabel(episode))

	var b strings.Builder
	b.WriteString("Hi,\n\n")
	if episode.Context.ContentPreview != "" {
		b.WriteString(fmt.Sprintf("Regarding: %q\n\n", episode.Context.ContentPreview))
	}
	b.WriteString("Thanks for your message. ")
	b.WriteString("[draft your reply here]\n")
	return title, summary, b.String()
}

// calendarDraft is the serialized structure carried in a calendar
// proposal's content field.
type calendarDraft struct {
	Title string `json:"title"`
	Notes string `json:"notes,omitempty"`
}

func renderCalendarEvent(episode *store.Episode) (string, string, string) {
	title := "Create a calendar event"
	summary := fmt.Sprintf("You were planning in %s", appsLabel(episode))

	draft := calendarDraft{
		Title: "New event",
		Notes: episode.Context.ContentPreview,
	}
	buf, _ := json.Marshal(draft)
	return title, summary, string(buf)
}

func renderNotesPage(episode *store.Episode) (string, string, string) {
	title := "Save a notes page"
	summary := fmt.Sprintf("You were taking notes in %s", appsLabel(episode))

	var b strings.Builder
	b.WriteString("# Notes\n\n")
	if episode.Context.ContentPreview != "" {
		b.WriteString(episode.Context.ContentPreview)
		b.WriteString("\n")
	}
	return title, summary, b.String()
}

func renderResearchNotes(episode *store.Episode) (string, string, string) {
	title := "Capture research findings"
	summary := fmt.Sprintf("You were researching across %d sources", len(episode.Context.URLs))

	var b strings.Builder
	b.WriteString("# Research\n\n")
	if episode.Context.ContentPreview != "" {
		b.WriteString(episode.Context.ContentPreview)
		b.WriteString("\n\n")
	}
	for _, url := range episode.Context.URLs {
		b.WriteString("- " + url + "\n")
	}
	return title, summary, b.String()
}

func appsLabel(episode *store.Episode) string {
	if len(episode.Context.Apps) == 0 {
		return "your apps"
	}
	return strings.Join(episode.Context.Apps, ", ")
}
