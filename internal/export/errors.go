package export

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step that failed.
type Stage string

const (
	StageGuard    Stage = "guard"
	StageRender   Stage = "render"
	StageCapture  Stage = "capture"
	StageAssembly Stage = "assembly"
	StageSave     Stage = "save"
)

// Notice is the single message shown to users when an export fails. Details
// go to the log.
const Notice = "Could not generate the PDF. See the diagnostic log for details."

// ErrBusy is returned while another export for the same viewer is running.
var ErrBusy = errors.New("export: another export is already in progress")

// Error wraps a pipeline failure with the stage it happened in.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export: %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StageOf returns the failing stage of err, or "" when err is not a pipeline
// error.
func StageOf(err error) Stage {
	var exportErr *Error
	if errors.As(err, &exportErr) {
		return exportErr.Stage
	}
	return ""
}
