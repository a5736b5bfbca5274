package drive

import (
	"fmt"
	"math"
	"strings"
)

// Status is the motor state expressed as percentages of the power limit.
type Status struct {
	Servo float64 `json:"servo"`
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// NewStatus converts raw motor readings into percentages. maxPower is the
// limit the outputs were scaled by; readings at that limit report 100.
func NewStatus(left, right, servo, maxPower float64) Status {
	if maxPower <= 0 {
		maxPower = 1
	}
	correction := 100.0 / maxPower
	return Status{
		Servo: servo * 100,
		Left:  left * correction,
		Right: right * correction,
	}
}

func (s Status) String() string {
	return strings.Join(s.Fields(), ", ")
}

// Fields returns the servo, left and right readings as display text.
func (s Status) Fields() []string {
	return []string{
		fmt.Sprintf("Servo: %.0f %%", pct(s.Servo)),
		fmt.Sprintf("Left: %.0f %%", pct(s.Left)),
		fmt.Sprintf("Right: %.0f %%", pct(s.Right)),
	}
}

// pct rounds half away from zero and folds -0 into 0 for display.
func pct(v float64) float64 {
	r := math.Round(v)
	if r == 0 {
		return 0
	}
	return r
}
