package shell

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSpawn marks failures to create the child process.
	ErrSpawn = errors.New("spawn failed")

	// ErrConsumerPanic wraps a panic raised inside a Consumer.
	ErrConsumerPanic = errors.New("consumer panicked")

	// ErrStreamRead wraps an I/O error while reading a pipe. Lines read
	// before the error were still delivered.
	ErrStreamRead = errors.New("stream read failed")

	// ErrAlreadyConsumed is returned when a single-consumer sequence is
	// iterated a second time or concurrently.
	ErrAlreadyConsumed = errors.New("output already consumed")
)

// SpawnError reports that a program could not be started.
type SpawnError struct {
	Name string
	Argv []string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", strings.Join(e.Argv, " "), e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrSpawn) true for every SpawnError.
func (e *SpawnError) Is(target error) bool {
	return target == ErrSpawn
}
