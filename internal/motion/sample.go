// Package motion infers sustained driving from noisy activity samples.
package motion

import "time"

type Activity int

const (
	Unknown Activity = iota
	Stationary
	Walking
	Running
	OnBicycle
	InVehicle
)

func (a Activity) String() string {
	switch a {
	case Stationary:
		return "stationary"
	case Walking:
		return "walking"
	case Running:
		return "running"
	case OnBicycle:
		return "on_bicycle"
	case InVehicle:
		return "in_vehicle"
	default:
		return "unknown"
	}
}

// Sample is one classified activity reading with its confidence (0-100).
type Sample struct {
	Activity   Activity
	Confidence int
	Time       time.Time
}
