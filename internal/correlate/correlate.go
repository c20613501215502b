// Package correlate turns decoded analysis response batches into task items,
// matching each record back to the task and image it was produced for.
package correlate

import (
	"log"

	"github.com/eramir/facecheck/internal/cv"
	"github.com/eramir/facecheck/internal/task"
)

// Items maps a response batch to storable task items, one per record. Each
// record is handled independently: a record that cannot be attributed to a
// task is skipped with a log line and never affects its siblings. An empty
// batch yields an empty slice.
func Items(batch []cv.Response) []task.Item {
	items := make([]task.Item, 0, len(batch))
	for _, rec := range batch {
		taskID, index, err := cv.ParseFilename(rec.Filename)
		if err != nil {
			log.Printf("correlate: skipping unattributable record: %v", err)
			continue
		}

		items = append(items, toItem(rec, taskID, index))
	}

	return items
}

func toItem(rec cv.Response, taskID string, index int) task.Item {
	item := task.Item{
		TaskID:     taskID,
		ImageIndex: index,
	}

	if msg, failed := rec.Err(); failed {
		item.Error = &msg
		return item
	}

	m, ok := rec.Metrics()
	if !ok {
		msg := "malformed analysis response"
		item.Error = &msg
		return item
	}

	// The worker reports the face box as (top, right, bottom, left); the
	// store keeps (left, top, right, bottom).
	item.LeftEyeClose = &m.LeftEyeClose
	item.RightEyeClose = &m.RightEyeClose
	item.FaceLeft = &m.FaceLeft
	item.FaceTop = &m.FaceTop
	item.FaceRight = &m.FaceRight
	item.FaceBottom = &m.FaceBottom
	item.ImageWidth = &m.ImageWidth
	item.ImageHeight = &m.ImageHeight
	item.Rotation = m.Rotation
	item.WithGlasses = m.Glasses

	return item
}
