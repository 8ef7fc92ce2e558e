package notification

import "errors"

var (
	ErrNotConnected        = errors.New("notification channel not connected")
	ErrNoIdentity          = errors.New("notification channel requires an identity")
	ErrClosed              = errors.New("notification channel closed")
	ErrAlreadyConnected    = errors.New("notification channel already running")
	ErrRejected            = errors.New("notification rejected")
	ErrAckTimeout          = errors.New("timed out waiting for notification ack")
	ErrSendThrottled       = errors.New("too many notifications sent, try again shortly")
	ErrInvalidPayload      = errors.New("invalid notification payload")
	ErrUnknownNotification = errors.New("unknown notification")
)
