// Package domain models glider ground-track samples and the wind estimates
// derived from them.
//
// # Data Source
//
// Samples come from a flight recorder or GNSS log exported as CSV. Each row
// carries the ground track angle, ground speed and position of the vehicle at
// one instant. No airspeed or wind sensor is involved.
//
// # Conventions
//
// Angles:
//
//	Track angles are degrees clockwise from true north, nominally [0, 360).
//	Wind direction is the bearing the air mass moves towards, computed as
//	atan2(east, north) and therefore in (-180, 180]. Use [WindFromDirection]
//	for the meteorological "wind from" bearing.
//
// Velocity space:
//
//	A ground velocity is projected onto east/north components:
//	  east  = speed * sin(track)
//	  north = speed * cos(track)
//	With constant airspeed and a varying heading, ground velocities lie on a
//	circle whose center is the wind vector and whose radius is the airspeed.
//
// Time:
//
//	Sample times are durations since the start of sampling. A window ending at
//	target time t with duration W contains every sample with t-W <= time <= t.
//	Samples must be sorted by time; equal times are allowed.
//
// # Ownership
//
// A sample sequence is read-only once loaded. Velocities are projected once
// per sequence and observations hold sub-slices of the shared velocity slice
// rather than copies.
package domain
