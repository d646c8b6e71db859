// Package onboarding describes the getting-started wizard: which steps a role
// walks through, how a requested step resolves, and what each step's header says.
package onboarding

import "github.com/dalemusser/stratabook/internal/domain/models"

// Step names as they appear in /getting-started/{step}.
const (
	StepUserSettings      = "user-settings"
	StepConnectedCalendar = "connected-calendar"
	StepSetupAvailability = "setup-availability"
	StepUserProfile       = "user-profile"
)

// InitialStep is shown when no step, or a step the role cannot see, is requested.
const InitialStep = StepUserSettings

var (
	adminSteps = []string{StepUserSettings, StepConnectedCalendar, StepSetupAvailability, StepUserProfile}
	userSteps  = []string{StepUserSettings, StepUserProfile}
)

// Steps returns the ordered steps for role. Doctors get the full wizard;
// everyone else skips the calendar and availability steps.
func Steps(role string) []string {
	src := userSteps
	if role == models.RoleAdmin {
		src = adminSteps
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Resolve returns the step to show for a requested name and its index.
// Unknown names fall back to the initial step at index 0.
func Resolve(role, name string) (string, int) {
	for i, s := range Steps(role) {
		if s == name {
			return s, i
		}
	}
	return InitialStep, 0
}

// GoToIndex returns the step at index n, or the initial step when n is out of
// range. Any step can be reached, including going back.
func GoToIndex(role string, n int) string {
	steps := Steps(role)
	if n < 0 || n >= len(steps) {
		return InitialStep
	}
	return steps[n]
}

// Path returns the URL path of a step.
func Path(step string) string {
	return "/getting-started/" + step
}

// Header holds the translation keys rendered above a step.
type Header struct {
	Title    string   `json:"title"`
	Subtitle []string `json:"subtitle"`
	SkipText string   `json:"skipText,omitempty"`
}

// HeaderFor returns the header of step for role. The closing step explains
// different next actions to doctors and patients.
func HeaderFor(role, step string) Header {
	switch step {
	case StepConnectedCalendar:
		return Header{
			Title:    "connect_your_calendar",
			Subtitle: []string{"connect_your_calendar_instructions"},
			SkipText: "connect_calendar_later",
		}
	case StepSetupAvailability:
		return Header{
			Title:    "set_availability",
			Subtitle: []string{"set_availability_getting_started_subtitle_1", "set_availability_getting_started_subtitle_2"},
			SkipText: "set_my_availability_later",
		}
	case StepUserProfile:
		sub := "nearly_there_instructions_user"
		if role == models.RoleAdmin {
			sub = "nearly_there_instructions"
		}
		return Header{Title: "nearly_there", Subtitle: []string{sub}}
	default:
		return Header{
			Title:    "welcome_to_osteocenter",
			Subtitle: []string{"we_just_need_basic_info", "edit_form_later_subtitle"},
		}
	}
}

// Landing decides where GET / sends a signed-in user.
func Landing(completed bool) string {
	if completed {
		return "/event-types"
	}
	return "/getting-started"
}
