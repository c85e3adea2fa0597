package restserver

import (
	"errors"
	"net/http"

	"github.com/chrissnell/segfit/internal/editor"
	"github.com/chrissnell/segfit/internal/storage"
	"github.com/chrissnell/segfit/internal/workspace"
	"github.com/chrissnell/segfit/pkg/segment"
)

var errStorageDisabled = errors.New("project storage is not configured")

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, workspace.ErrUnknownChannel),
		errors.Is(err, editor.ErrSegmentNotFound),
		errors.Is(err, storage.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrInvalidDegree),
		errors.Is(err, editor.ErrInvalidType),
		errors.Is(err, editor.ErrEmptyRange),
		errors.Is(err, segment.ErrInvariant):
		return http.StatusUnprocessableEntity
	case errors.Is(err, editor.ErrNoOpSplit),
		errors.Is(err, editor.ErrNonAdjacentMerge),
		errors.Is(err, editor.ErrBoundaryOutOfRange),
		errors.Is(err, editor.ErrCannotDeleteLastSegment),
		errors.Is(err, editor.ErrOverlappingInsert):
		return http.StatusConflict
	case errors.Is(err, errStorageDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
