package main

import (
	"errors"
	"fmt"
)

var (
	ErrUnreachable       = errors.New("store unreachable")
	ErrNotConnected      = errors.New("not connected to a store")
	ErrNoGeometry        = errors.New("layer has no geometry")
	ErrNoLayers          = errors.New("dataset has no layers")
	ErrTableExists       = errors.New("table already exists")
	ErrEmptyLayer        = errors.New("layer has no features")
	ErrOpenFailed        = errors.New("open dataset failed")
	ErrMissingGraphic    = errors.New("no graphic for layer")
	ErrInvalidEnvelope   = errors.New("invalid envelope")
	ErrUnknownDriver     = errors.New("no dataset driver for locator")
	ErrInvalidTile       = errors.New("invalid tile coordinate")
	ErrUnknownTable      = errors.New("unknown table")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidParams     = errors.New("invalid connection parameters")
)

// ConnectError reports a failed connect attempt. It always wraps
// ErrUnreachable.
type ConnectError struct {
	Target string // redacted store URL
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Target, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	return []error{ErrUnreachable, e.Err}
}

// MismatchedGeometryError names the first two conflicting kinds of a layer in
// feature order.
type MismatchedGeometryError struct {
	Layer    string
	Expected GeometryKind
	Found    GeometryKind
	Feature  int // index of the first divergent feature
}

func (e *MismatchedGeometryError) Error() string {
	return fmt.Sprintf("layer %q: mismatched geometry kind: expected %s, found %s at feature %d",
		e.Layer, e.Expected, e.Found, e.Feature)
}

// Import stages reported by ImportError.
const (
	StageInfer         = "infer"
	StageCreateTable   = "create-table"
	StageAlterGeometry = "alter-geometry"
	StageBulkLoad      = "bulk-load"
	StageAnnotate      = "annotate"
	StageMirror        = "mirror"
)

// ImportError is a per-layer import failure.
type ImportError struct {
	Layer string
	Stage string
	Err   error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import layer %q (%s): %v", e.Layer, e.Stage, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// MirrorError is a per-table mirror failure. Err wraps ErrEmptyLayer or
// ErrOpenFailed when applicable.
type MirrorError struct {
	Table TableIdentity
	Err   error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("mirror %s: %v", e.Table, e.Err)
}

func (e *MirrorError) Unwrap() error { return e.Err }
