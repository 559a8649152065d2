package ingest

import "errors"

var (
	// ErrAlreadyRunning is returned by Start on a running pipeline.
	ErrAlreadyRunning = errors.New("ingest: pipeline already running")

	// ErrInvalidPayload is returned for a payload that is not valid JSON or
	// fails field validation.
	ErrInvalidPayload = errors.New("ingest: invalid payload")

	// ErrInvalidTopic is returned for a topic without a valid device address.
	ErrInvalidTopic = errors.New("ingest: invalid topic")

	// ErrUnknownDevice is returned when an address is not registered.
	ErrUnknownDevice = errors.New("ingest: unknown device")

	// ErrQueueFull is logged when a stream sheds a message.
	ErrQueueFull = errors.New("ingest: stream queue full")
)
