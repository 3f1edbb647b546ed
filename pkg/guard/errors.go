package guard

import "errors"

// Stage identifies which guard call produced a verdict
type Stage string

const (
	StageInput  Stage = "input"
	StageOutput Stage = "output"
)

// ErrBlocked matches every BlockedError through errors.Is
var ErrBlocked = errors.New("Pangea AI Guard returned a blocked response.")

// BlockedError is returned when AI Guard blocks the prompt or the model response.
// The message does not depend on the stage.
type BlockedError struct {
	Stage Stage
}

func (e *BlockedError) Error() string {
	return ErrBlocked.Error()
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}
