package hub

import "errors"

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("hub: not found")

	// ErrUnknownChannel is returned for channel names outside the supported set.
	ErrUnknownChannel = errors.New("hub: unknown channel")

	// ErrInvalidInput is returned when required identifiers are missing.
	ErrInvalidInput = errors.New("hub: invalid input")

	// ErrDuplicateMessage is returned when an inbound message with the same
	// external id was already recorded in the conversation.
	ErrDuplicateMessage = errors.New("hub: duplicate inbound message")

	// ErrActivityNotUpdated wraps a Touch failure after the message itself was
	// stored. The returned message is valid.
	ErrActivityNotUpdated = errors.New("hub: conversation activity not updated")

	// ErrIntegrity signals an upsert that produced no record. Unique indexes make
	// this unreachable; seeing it means the schema is broken.
	ErrIntegrity = errors.New("hub: upsert returned no record")
)
