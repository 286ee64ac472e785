package errs

import "errors"

// Доменные сентинель-ошибки для маппинга в HTTP коды в handlers.
var (
	ErrUnknownSession    = errors.New("unknown session")
	ErrNotParticipant    = errors.New("sender is not a session participant")
	ErrInvalidTransition = errors.New("invalid call state transition")
	ErrAlreadyInCall     = errors.New("an active call already exists for this pair")
	ErrSelfCall          = errors.New("caller and callee must differ")
	ErrInvalidKind       = errors.New("call kind must be audio or video")
	ErrSessionIDReused   = errors.New("session id was already used")
)
