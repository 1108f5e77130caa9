package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the memory system. Callers match with errors.Is.
var (
	ErrNotFound          = errors.New("memory: not found")
	ErrStore             = errors.New("memory: store failure")
	ErrIndex             = errors.New("memory: index failure")
	ErrDimensionMismatch = fmt.Errorf("%w: vector dimension mismatch", ErrIndex)
	ErrEmbedding         = errors.New("memory: embedding failure")
	ErrSummarization     = errors.New("memory: summarization failure")
	ErrInvalidConfig     = errors.New("memory: invalid configuration")
	ErrInvalidInput      = errors.New("memory: invalid input")
)
