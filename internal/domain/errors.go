package domain

import "errors"

var (
	ErrNotInitialized   = errors.New("notification service is not initialized")
	ErrInvalidPayload   = errors.New("invalid notification payload")
	ErrTemplateNotFound = errors.New("template not found")
	ErrTopology         = errors.New("queue topology declaration failed")
	ErrBrokerClosed     = errors.New("broker connection is closed")
)
