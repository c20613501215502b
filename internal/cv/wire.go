// Package cv speaks the wire protocol of the face-analysis worker: it
// publishes analysis requests and consumes the result batches the worker
// sends back on a shared durable queue.
package cv

import (
	"fmt"
	"strconv"
	"strings"
)

// Queue names shared with the analysis worker. Both are durable and serve
// every task and client; results are correlated by content, not by
// per-task queues.
const (
	RequestQueue  = "cv_requests"
	ResponseQueue = "cv_responses"
)

// Request asks the worker to analyze one stored image.
type Request struct {
	Filename string `json:"filename"`
	TaskID   string `json:"task_id"`
}

// Response is one record of a worker result batch: one detected face, or
// one failure for the whole image. Exactly one of the error and the metric
// fields is expected to be present.
type Response struct {
	Filename      string   `json:"filename"`
	TaskID        string   `json:"task_id"`
	Error         *string  `json:"error"`
	LeftEyeClose  *float64 `json:"left_eye_close"`
	RightEyeClose *float64 `json:"right_eye_close"`
	FaceLocation  []int    `json:"face_location"` // top, right, bottom, left
	ImageSize     []int    `json:"image_size"`
	Rotation      *float64 `json:"rotation"`
	Glasses       *bool    `json:"glasses"`
}

// Metrics is the successful-analysis side of a response record, with the
// face box still in the worker's (top, right, bottom, left) order.
type Metrics struct {
	LeftEyeClose  float64
	RightEyeClose float64
	FaceTop       int
	FaceRight     int
	FaceBottom    int
	FaceLeft      int
	ImageWidth    int
	ImageHeight   int
	Rotation      *float64
	Glasses       bool
}

// Err returns the analysis error message when the record reports a
// failure.
func (r *Response) Err() (string, bool) {
	if r.Error == nil || *r.Error == "" {
		return "", false
	}

	return *r.Error, true
}

// Metrics returns the record's face measurements when it carries a
// complete successful analysis.
func (r *Response) Metrics() (Metrics, bool) {
	if _, failed := r.Err(); failed {
		return Metrics{}, false
	}
	if r.LeftEyeClose == nil || r.RightEyeClose == nil ||
		len(r.FaceLocation) != 4 || len(r.ImageSize) != 2 {
		return Metrics{}, false
	}

	m := Metrics{
		LeftEyeClose:  *r.LeftEyeClose,
		RightEyeClose: *r.RightEyeClose,
		FaceTop:       r.FaceLocation[0],
		FaceRight:     r.FaceLocation[1],
		FaceBottom:    r.FaceLocation[2],
		FaceLeft:      r.FaceLocation[3],
		ImageWidth:    r.ImageSize[0],
		ImageHeight:   r.ImageSize[1],
		Rotation:      r.Rotation,
	}
	if r.Glasses != nil {
		m.Glasses = *r.Glasses
	}

	return m, true
}

// Filename builds the storage key for one image of a task. The task id is
// embedded so responses can be correlated back without per-task queues.
func Filename(taskID string, index int) string {
	return fmt.Sprintf("%s:%d", taskID, index)
}

// ParseFilename splits a storage key back into task id and image index.
func ParseFilename(name string) (taskID string, index int, err error) {
	sep := strings.LastIndex(name, ":")
	if sep <= 0 || sep == len(name)-1 {
		return "", 0, fmt.Errorf("malformed filename %q", name)
	}

	index, err = strconv.Atoi(name[sep+1:])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("malformed image index in filename %q", name)
	}

	return name[:sep], index, nil
}
