package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/models"
)

// DecodeFrameTask parses a FRAMES message body.
func DecodeFrameTask(data []byte) (models.FrameTask, error) {
	var task models.FrameTask
	if err := json.Unmarshal(data, &task); err != nil {
		return task, fmt.Errorf("unmarshal frame task: %w", err)
	}
	if task.CameraID == uuid.Nil || task.FrameRef == "" {
		return task, fmt.Errorf("frame task missing camera or frame ref")
	}
	return task, nil
}

// DecodeAttendanceEvent parses an ATTENDANCE message body.
func DecodeAttendanceEvent(data []byte) (models.AttendanceEvent, error) {
	var ev models.AttendanceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal attendance event: %w", err)
	}
	if ev.Record.PersonName == "" {
		return ev, fmt.Errorf("attendance event without person")
	}
	return ev, nil
}

// DecodeControl parses a camera control command.
func DecodeControl(data []byte) (models.CameraControl, error) {
	var cmd models.CameraControl
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("unmarshal control: %w", err)
	}
	switch cmd.Action {
	case "start", "stop":
	default:
		return cmd, fmt.Errorf("unknown action %q", cmd.Action)
	}
	return cmd, nil
}
