// Package motor defines the drive/steering/LED board the rover controls.
//
// Every implementation serializes its calls, so a Stop issued after a
// drive command always leaves the motors stopped even when the two come
// from different goroutines.
package motor

// Driver sets drive power and steering.
type Driver interface {
	// SetDriveOutputs sets left and right power, each in [-1, 1].
	SetDriveOutputs(left, right float64)
	// SetSteering sets the servo position in [-1, 1]; +1 is full right.
	SetSteering(position float64)
	// Stop cuts all drive outputs immediately.
	Stop()
}

// Indicator drives the status LED.
type Indicator interface {
	SetIndicatorLed(on bool)
	IndicatorLed() bool
}

// Reporter reads back the last commanded outputs.
type Reporter interface {
	DriveOutputs() (left, right float64)
	Steering() float64
}

// Motor is the full board capability.
type Motor interface {
	Driver
	Indicator
	Reporter
	Close() error
}

// Reset puts the board into a safe idle state: motors off, steering
// centred, LED off.
func Reset(m Motor) {
	m.Stop()
	m.SetSteering(0)
	m.SetIndicatorLed(false)
}
