package stelwidget

import "time"

// ViewState is the widget's desired view. Setters update it before the
// matching command goes out, so it reflects intent, not what the engine
// last acknowledged.
type ViewState struct {
	Latitude  float64 // degrees, clamped to [-90, 90]
	Longitude float64 // degrees, clamped to [-180, 180]
	Altitude  float64 // meters above sea level
	FOV       float64 // degrees
	Time      time.Time
}

// Observatory default, Villanova PA.
func defaultViewState() ViewState {
	return ViewState{
		Latitude:  40.03784,
		Longitude: -75.34238,
		Altitude:  142.0,
		FOV:       60.0,
		Time:      time.Now().UTC(),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
