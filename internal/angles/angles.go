// Package angles derives joint angles from pose keypoints using 2-D vector
// geometry. Every function here is pure.
package angles

import (
	"math"

	"github.com/claude/formcoach/internal/pose"
)

// Point is a 2-D image coordinate.
type Point struct {
	X, Y float64
}

// Angles holds the joint angles measured in one frame, in degrees.
// A nil field means the angle could not be measured; it is never zero-filled.
type Angles struct {
	Hip           *float64 `json:"hip,omitempty"`
	Knee          *float64 `json:"knee,omitempty"`
	Shoulder      *float64 `json:"shoulder,omitempty"`
	ShoulderRight *float64 `json:"shoulderRight,omitempty"`
	Torso         *float64 `json:"torso,omitempty"`
	Armpit        *float64 `json:"armpit,omitempty"`
	Body          *float64 `json:"body,omitempty"`
}

// Empty reports whether no angle was measured.
func (a Angles) Empty() bool {
	return a.Hip == nil && a.Knee == nil && a.Shoulder == nil && a.ShoulderRight == nil &&
		a.Torso == nil && a.Armpit == nil && a.Body == nil
}

// Clone returns a copy that shares no pointers with a.
func (a Angles) Clone() Angles {
	return Angles{
		Hip:           clone(a.Hip),
		Knee:          clone(a.Knee),
		Shoulder:      clone(a.Shoulder),
		ShoulderRight: clone(a.ShoulderRight),
		Torso:         clone(a.Torso),
		Armpit:        clone(a.Armpit),
		Body:          clone(a.Body),
	}
}

func clone(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Between returns the angle ABC at vertex b in degrees, in [0,180].
// It uses atan2(cross, dot), which stays stable near 0° and 180°.
// When a or c coincides with b the angle is 0.
func Between(a, b, c Point) float64 {
	bax, bay := a.X-b.X, a.Y-b.Y
	bcx, bcy := c.X-b.X, c.Y-b.Y
	dot := bax*bcx + bay*bcy
	cross := bax*bcy - bay*bcx
	return math.Abs(math.Atan2(cross, dot) * 180 / math.Pi)
}

// TorsoLean returns the angle between the shoulder→hip vector and the image
// vertical, in degrees. An upright torso (shoulder straight above the hip in
// image coordinates, y growing downward) is 0. This is a posture proxy, not
// an anatomical joint angle.
func TorsoLean(shoulder, hip Point) float64 {
	dx := hip.X - shoulder.X
	dy := hip.Y - shoulder.Y
	return math.Abs(math.Atan2(dx, dy) * 180 / math.Pi)
}

// Calculator computes the named joint angles from a keypoint set.
type Calculator struct {
	// MinConfidence is the floor below which a keypoint is treated as absent.
	MinConfidence float64
}

// NewCalculator returns a Calculator with the given confidence floor.
func NewCalculator(minConfidence float64) Calculator {
	return Calculator{MinConfidence: minConfidence}
}

// Calculate measures every angle whose landmarks are all present and confident.
func (c Calculator) Calculate(kps []pose.Keypoint) Angles {
	var a Angles
	a.Knee = c.triple(kps, pose.LeftHip, pose.LeftKnee, pose.LeftAnkle)
	a.Hip = c.triple(kps, pose.LeftShoulder, pose.LeftHip, pose.LeftKnee)
	a.Shoulder = c.triple(kps, pose.LeftHip, pose.LeftShoulder, pose.LeftElbow)
	a.ShoulderRight = c.triple(kps, pose.RightHip, pose.RightShoulder, pose.RightElbow)
	a.Armpit = c.triple(kps, pose.RightElbow, pose.RightShoulder, pose.RightHip)
	a.Body = c.triple(kps, pose.RightShoulder, pose.RightHip, pose.RightAnkle)

	if lean, ok := c.lean(kps, pose.RightShoulder, pose.RightHip); ok {
		a.Torso = &lean
	} else if lean, ok := c.lean(kps, pose.LeftShoulder, pose.LeftHip); ok {
		a.Torso = &lean
	}
	return a
}

func (c Calculator) point(kps []pose.Keypoint, name pose.Landmark) (Point, bool) {
	kp, ok := pose.Find(kps, name)
	if !ok || !kp.Confident(c.MinConfidence) {
		return Point{}, false
	}
	return Point{X: kp.X, Y: kp.Y}, true
}

func (c Calculator) triple(kps []pose.Keypoint, a, b, cc pose.Landmark) *float64 {
	pa, ok := c.point(kps, a)
	if !ok {
		return nil
	}
	pb, ok := c.point(kps, b)
	if !ok {
		return nil
	}
	pc, ok := c.point(kps, cc)
	if !ok {
		return nil
	}
	v := Between(pa, pb, pc)
	return &v
}

func (c Calculator) lean(kps []pose.Keypoint, shoulder, hip pose.Landmark) (float64, bool) {
	ps, ok := c.point(kps, shoulder)
	if !ok {
		return 0, false
	}
	ph, ok := c.point(kps, hip)
	if !ok {
		return 0, false
	}
	return TorsoLean(ps, ph), true
}

// Value returns the angle and whether it was measured.
func Value(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Ptr returns a pointer to v. Useful for building Angles literals.
func Ptr(v float64) *float64 {
	return &v
}
