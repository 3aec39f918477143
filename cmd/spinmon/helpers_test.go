package main

import (
	"math"
	"testing"
	"time"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// testZone is centered at the default center with radius 300; inner radius 37.5.
var testZone = Zone{Center: Point{X: 600, Y: 300}, Radius: 300}

func testGestureConfig() GestureConfig {
	return GestureConfig{
		Zone:    testZone,
		Timeout: time.Second,
		MaxJump: 50,
	}
}

// circlePoint returns the point at angle a (radians) on a circle of radius r
// around the test zone center.
func circlePoint(r, a float64) Point {
	return Point{
		X: testZone.Center.X + r*math.Cos(a),
		Y: testZone.Center.Y + r*math.Sin(a),
	}
}

// spinPath returns evenly spaced points on a radius-200 circle starting at
// angle 0. steps samples of 2π/32 each; direction +1 is clockwise.
// Consecutive points are about 39 units apart.
func spinPath(steps int, direction float64) []Point {
	const perTurn = 32
	pts := make([]Point, 0, steps+1)
	for i := 0; i <= steps; i++ {
		pts = append(pts, circlePoint(200, direction*float64(i)*2*math.Pi/perTurn))
	}
	return pts
}

// turns converts a number of full turns (plus one extra step so the
// threshold is crossed despite rounding) into spinPath steps.
func turns(n int) int { return n*32 + 1 }

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}

// keyRepeat is the EV_KEY value the kernel sends for autorepeat.
const keyRepeat = 2
