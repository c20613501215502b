// Package task defines the core domain model: a validation task submitted
// by a client and the per-image analysis results attached to it as the
// worker reports back.
package task

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// Quality thresholds applied to analysis results. Eye-closure scores run
// lower-is-more-closed; rotation is in radians.
const (
	EyesClosedMax     = 0.2
	FaceWidthRatioMin = 0.05
	HalfProfileMin    = 0.35
	ProfileMin        = 1.05
)

// Task is one submission of one or more images, tracked as a unit. Items
// accumulate as analysis responses arrive; Error is set only when the
// submission step itself fails, independently of per-item errors.
type Task struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Error     *string    `json:"error"`
	Items     []Item     `json:"items"`
}

func New() *Task {
	return &Task{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Items:     []Item{},
	}
}

// Item is one face-analysis result, or one failure, for one submitted
// image. Either the metric fields are populated and Error is nil, or Error
// is set and every metric field is nil.
type Item struct {
	ID         int64  `json:"id"`
	TaskID     string `json:"task_id"`
	ImageIndex int    `json:"image_index"`

	LeftEyeClose  *float64 `json:"left_eye_close"`
	RightEyeClose *float64 `json:"right_eye_close"`
	FaceLeft      *int     `json:"face_left"`
	FaceTop       *int     `json:"face_top"`
	FaceRight     *int     `json:"face_right"`
	FaceBottom    *int     `json:"face_bottom"`
	ImageWidth    *int     `json:"image_width"`
	ImageHeight   *int     `json:"image_height"`
	Rotation      *float64 `json:"rotation"`
	WithGlasses   bool     `json:"with_glasses"`

	IsGood *bool   `json:"is_good"`
	Error  *string `json:"error"`
}

// IsFaceSmall reports whether the detected face is too small relative to
// the image width.
func (i *Item) IsFaceSmall() bool {
	if i.FaceLeft == nil || i.FaceRight == nil || i.ImageWidth == nil || *i.ImageWidth == 0 {
		return false
	}

	return float64(*i.FaceRight-*i.FaceLeft)/float64(*i.ImageWidth) < FaceWidthRatioMin
}

// IsEyesClosed reports whether both eye-closure scores fall below the
// closed-eye threshold.
func (i *Item) IsEyesClosed() bool {
	if i.LeftEyeClose == nil || i.RightEyeClose == nil {
		return false
	}

	return *i.LeftEyeClose < EyesClosedMax && *i.RightEyeClose < EyesClosedMax
}

// IsProfile reports whether the head rotation classifies the face as a
// full profile.
func (i *Item) IsProfile() bool {
	return i.Rotation != nil && math.Abs(*i.Rotation) >= ProfileMin
}

// IsHalfProfile reports whether the head rotation classifies the face as a
// half profile.
func (i *Item) IsHalfProfile() bool {
	if i.Rotation == nil {
		return false
	}
	r := math.Abs(*i.Rotation)

	return r >= HalfProfileMin && r < ProfileMin
}

// MarshalJSON serializes the item together with its derived quality flags.
// The flags are computed, never stored.
func (i Item) MarshalJSON() ([]byte, error) {
	type alias Item

	return json.Marshal(struct {
		alias
		IsFaceSmall   bool `json:"is_face_small"`
		IsEyesClosed  bool `json:"is_eyes_closed"`
		IsProfile     bool `json:"is_profile"`
		IsHalfProfile bool `json:"is_halfprofile"`
	}{
		alias:         alias(i),
		IsFaceSmall:   i.IsFaceSmall(),
		IsEyesClosed:  i.IsEyesClosed(),
		IsProfile:     i.IsProfile(),
		IsHalfProfile: i.IsHalfProfile(),
	})
}
