// Package pose defines the body-landmark observations produced by a pose
// estimator and the Source boundary the coach pulls them through.
package pose

import "time"

// Landmark is a named anatomical keypoint.
type Landmark string

// Landmark vocabulary shared by MediaPipe and MoveNet style estimators.
const (
	Nose          Landmark = "nose"
	LeftEye       Landmark = "left_eye"
	RightEye      Landmark = "right_eye"
	LeftEar       Landmark = "left_ear"
	RightEar      Landmark = "right_ear"
	LeftShoulder  Landmark = "left_shoulder"
	RightShoulder Landmark = "right_shoulder"
	LeftElbow     Landmark = "left_elbow"
	RightElbow    Landmark = "right_elbow"
	LeftWrist     Landmark = "left_wrist"
	RightWrist    Landmark = "right_wrist"
	LeftHip       Landmark = "left_hip"
	RightHip      Landmark = "right_hip"
	LeftKnee      Landmark = "left_knee"
	RightKnee     Landmark = "right_knee"
	LeftAnkle     Landmark = "left_ankle"
	RightAnkle    Landmark = "right_ankle"
)

// Keypoint is one landmark observation. X and Y are normalized to the image
// ([0,1], y grows downward). Z and Score are optional.
type Keypoint struct {
	Name  Landmark `json:"name"`
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	Z     *float64 `json:"z,omitempty"`
	Score *float64 `json:"score,omitempty"`
}

// Confident reports whether the keypoint meets the confidence floor.
// Keypoints from estimators that do not score landmarks count as confident.
func (k Keypoint) Confident(floor float64) bool {
	return k.Score == nil || *k.Score >= floor
}

// Pose is the set of keypoints observed at one instant.
type Pose struct {
	Keypoints []Keypoint `json:"keypoints"`
	FPS       *float64   `json:"fps,omitempty"`
	At        time.Time  `json:"-"`
}

// Find returns the keypoint with the given name.
func (p Pose) Find(name Landmark) (Keypoint, bool) {
	return Find(p.Keypoints, name)
}

// Find returns the first keypoint with the given name.
func Find(kps []Keypoint, name Landmark) (Keypoint, bool) {
	for _, kp := range kps {
		if kp.Name == name {
			return kp, true
		}
	}
	return Keypoint{}, false
}
