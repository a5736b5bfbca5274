// Package drive converts remote speed/steering commands into motor outputs.
//
// Sign conventions: positive speed drives forward, positive steering turns
// right. The servo position equals the steering value, so +1 is full right
// lock; a board wired the other way must invert inside its motor driver,
// not here.
package drive

import (
	"math"
	"strconv"
	"strings"
)

// deadband is the steering magnitude below which both sides run at full speed.
const deadband = 0.05

// Command is a single speed/steering request, each in [-1, 1].
type Command struct {
	Speed    float64 `json:"speed"`
	Steering float64 `json:"steering"`
}

// Outputs are per-side motor powers and the servo position, each in [-1, 1].
type Outputs struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
	Servo float64 `json:"servo"`
}

// Clamp limits v to [-1, 1].
func Clamp(v float64) float64 {
	switch {
	case v < -1:
		return -1
	case v > 1:
		return 1
	}
	return v
}

// Clamped returns c with both fields limited to [-1, 1].
func (c Command) Clamped() Command {
	return Command{Speed: Clamp(c.Speed), Steering: Clamp(c.Steering)}
}

// Map converts speed and steering into motor outputs. Inputs are clamped
// first. Turning slows the inside wheel by up to half; the outer wheel keeps
// the commanded speed, so outputs never exceed the inputs in magnitude.
func Map(speed, steering float64) Outputs {
	speed = Clamp(speed)
	steering = Clamp(steering)

	left, right := speed, speed
	if steering < -deadband {
		left *= 1.0 + 0.5*steering
	} else if steering > deadband {
		right *= 1.0 - 0.5*steering
	}
	return Outputs{Left: left, Right: right, Servo: steering}
}

// Map applies Map to the command.
func (c Command) Map() Outputs {
	return Map(c.Speed, c.Steering)
}

// ParsePath reads a command from a "/set/{speed}/{steering}" request path.
// Missing or unparseable values yield the stopped command (0, 0) rather than
// an error; ok reports whether both values parsed.
func ParsePath(path string) (cmd Command, ok bool) {
	parts := strings.Split(path, "/")
	if len(parts) < 4 {
		return Command{}, false
	}
	return Parse(parts[2], parts[3])
}

// Parse reads a command from two decimal strings, falling back to (0, 0).
func Parse(speed, steering string) (cmd Command, ok bool) {
	s, err := strconv.ParseFloat(strings.TrimSpace(speed), 64)
	if err != nil || math.IsNaN(s) {
		return Command{}, false
	}
	st, err := strconv.ParseFloat(strings.TrimSpace(steering), 64)
	if err != nil || math.IsNaN(st) {
		return Command{}, false
	}
	return Command{Speed: s, Steering: st}.Clamped(), true
}
