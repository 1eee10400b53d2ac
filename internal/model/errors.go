package model

import "errors"

var (
	// ErrStructural marks malformed construction inputs. It is raised at build
	// time, never while stepping.
	ErrStructural = errors.New("structural error")
	// ErrSimulation marks failures that abort the current step.
	ErrSimulation = errors.New("simulation error")

	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrUnsupportedOutput = errors.New("unsupported output representation")
	ErrNotFound          = errors.New("not found")
	ErrDuplicateName     = errors.New("duplicate name")
	ErrAlreadyConnected  = errors.New("termination already connected")
)
