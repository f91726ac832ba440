package gps

import "time"

// Fix is one raw positioning sample as produced by a position source.
type Fix struct {
	Lat      float64
	Lon      float64
	Accuracy float64 // meters
	Altitude *float64
	Speed    *float64 // m/s
	Bearing  *float64 // degrees
	Time     time.Time
}

// Center is the weighted middle of a fix cluster. Error is the mean
// accuracy of the contributing fixes, rounded to whole meters.
type Center struct {
	Lat   float64
	Lon   float64
	Error int
}
