package blip

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotStarted is returned by operations that need a started session.
	ErrNotStarted = errors.New("blip: session not started")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("blip: session already started")
	// ErrSessionTerminated is returned once the terminal event was consumed.
	ErrSessionTerminated = errors.New("blip: session terminated")
	// ErrTimeout is returned when a wait for the next event reached its deadline.
	ErrTimeout = errors.New("blip: timeout")
	// ErrNoEndpoint is returned when no endpoint could be reached within the attempt budget.
	ErrNoEndpoint = errors.New("blip: no endpoint reachable")
	// ErrUnknownService is returned for a service that was not opened.
	ErrUnknownService = errors.New("blip: unknown service")
	// ErrServiceFailure is returned when opening or registering a service failed.
	ErrServiceFailure = errors.New("blip: service failure")
	// ErrTopicNotActive is returned when publishing to a deleted or unknown topic.
	ErrTopicNotActive = errors.New("blip: topic not active")
	// ErrInvalidTopic is returned for a topic string without a service prefix.
	ErrInvalidTopic = errors.New("blip: invalid topic")
	// ErrForeignIdentity is returned for an identity created by another session.
	ErrForeignIdentity = errors.New("blip: identity belongs to another session")
)

// ConfigError collects every problem found while validating session options.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "blip: invalid configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ConfigError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// timeoutError keeps both ErrTimeout and the context error in the chain.
func timeoutError(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
}
