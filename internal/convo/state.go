package convo

import "github.com/foodfinderyyc/smsbot/internal/models"

// DialogueState is the per-run state of one dialogue. It is owned by a single engine
// run and discarded when the run ends.
type DialogueState struct {
	Step StepID
	Day  models.Day
	Mode models.LocationMode
	// Responses holds the raw reply of every step completed so far.
	Responses map[StepID]string
	// Prefix is error text shown before the next location-type prompt.
	Prefix     string
	Coordinate *models.Coordinate
}

func newDialogueState() DialogueState {
	return DialogueState{
		Step:      StepGreeting,
		Responses: make(map[StepID]string),
	}
}
