package rose

import (
	"errors"
	"fmt"

	"rosa-canvas-server/modules/common/utils"
)

// ValidationError - 로컬 입력 검증 실패 (원격 호출 전에 실패)
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// RemoteInvocationError - 원격 생성 호출 실패 (종류 구분 없이 사용자에게는 동일하게 노출)
type RemoteInvocationError struct {
	Model string
	Err   error
}

func (e *RemoteInvocationError) Error() string {
	return fmt.Sprintf("gemini %s: %v", e.Model, e.Err)
}

func (e *RemoteInvocationError) Unwrap() error {
	return e.Err
}

var (
	ErrMissingName = &ValidationError{Field: "name", Reason: "missing name"}

	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyGenerating = fmt.Errorf("%w: a generation is already in progress", ErrInvalidTransition)

	ErrNoImageReturned = errors.New("no image data returned from API")

	ErrNotAnImage       = utils.ErrNotAnImage
	ErrUndecodableImage = errors.New("reference image could not be decoded")
)
