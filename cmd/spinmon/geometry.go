package main

import "math"

// Point is a position in device coordinates (touchpad ABS units).
type Point struct {
	X float64
	Y float64
}

// Vector is a displacement in device coordinates.
type Vector struct {
	X float64
	Y float64
}

// Sub returns the vector from o to p.
func (p Point) Sub(o Point) Vector {
	return Vector{X: p.X - o.X, Y: p.Y - o.Y}
}

// SquareLength avoids the square root; every comparison is done on squared distances.
func (v Vector) SquareLength() float64 {
	return v.X*v.X + v.Y*v.Y
}

// Angle is the polar angle of v in radians, in (-π, π].
//
// The y axis of touch devices grows downward, so increasing angles are
// clockwise as seen by the user.
func (v Vector) Angle() float64 {
	return math.Atan2(v.Y, v.X)
}

// ShortestSignedDifference returns the signed rotation from `from` to `to`
// taking the short way around. The result is in (-π, π].
func ShortestSignedDifference(from, to float64) float64 {
	d := math.Remainder(to-from, 2*math.Pi)
	if d <= -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

// Zone is the annulus around the gesture center in which angle samples are trusted.
type Zone struct {
	Center Point
	Radius float64
}

// ZoneSample is a raw point projected onto a Zone.
type ZoneSample struct {
	Point  Point
	Vector Vector
	SqLen  float64
	Angle  float64
	InZone bool
}

// Locate projects p onto the zone.
//
// A sample is inside when it is no farther than Radius from the center and
// farther than Radius/8 (sqLen*64 > r²). Close to the center the angle
// becomes too noisy to be useful.
func (z Zone) Locate(p Point) ZoneSample {
	v := p.Sub(z.Center)
	sq := v.SquareLength()
	r2 := z.Radius * z.Radius
	return ZoneSample{
		Point:  p,
		Vector: v,
		SqLen:  sq,
		Angle:  v.Angle(),
		InZone: sq <= r2 && sq*64 > r2,
	}
}
