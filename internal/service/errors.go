package service

import "errors"

var (
	// ErrUndecodable marks generator output that could not be turned into a quote
	ErrUndecodable = errors.New("undecodable generator output")

	// ErrGeneratorUnavailable wraps transport failures talking to the generator
	ErrGeneratorUnavailable = errors.New("quote generator unavailable")

	// ErrSessionNeedsReset is returned after repeated generator failures
	ErrSessionNeedsReset = errors.New("session needs reset")

	// ErrSessionNotFound is returned for unknown session ids
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyMessage is returned for blank user messages
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTurnSuperseded is returned when a newer request replaced an in-flight turn
	ErrTurnSuperseded = errors.New("turn superseded by a newer request")
)
