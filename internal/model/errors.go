package model

import "errors"

var (
	// ErrInputRequired is returned when a job request is missing the input text.
	ErrInputRequired = errors.New("input is required")

	// ErrThreadRequired is returned when a job request is missing the thread ID.
	ErrThreadRequired = errors.New("thread id is required")

	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")

	// ErrThreadNotFound is returned when a thread is not found.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrAgentNotFound is returned when an agent is not found.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrProfileNotFound is returned when a profile is not found.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrCrewNotFound is returned when a crew is not found.
	ErrCrewNotFound = errors.New("crew not found")

	// ErrJobInFlight is returned when a socket already has a streaming job.
	ErrJobInFlight = errors.New("still processing a previous request")
)
