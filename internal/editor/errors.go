package editor

import "errors"

// Structural edit errors. A rejected operation leaves the channel unchanged.
var (
	ErrNoOpSplit               = errors.New("no segment strictly contains the split point")
	ErrNonAdjacentMerge        = errors.New("segments are not an adjacent pair")
	ErrBoundaryOutOfRange      = errors.New("boundary out of range")
	ErrCannotDeleteLastSegment = errors.New("cannot delete the only segment")
	ErrOverlappingInsert       = errors.New("inserted range overlaps an existing segment")
	ErrInvalidDegree           = errors.New("polynomial degree must be non-negative")

	ErrSegmentNotFound = errors.New("segment index out of range")
	ErrEmptyRange      = errors.New("segment start must be below its end")
	ErrInvalidType     = errors.New("unknown segment type")
)
