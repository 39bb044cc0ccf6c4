package contest

import (
	apperrors "github.com/SAFERMOON/SAFERWINNING/internal/errors"
)

// Errors
var (
	ErrZeroAmount          = apperrors.Validation("amount must be > 0")
	ErrBelowMinimum        = apperrors.Validation("amount below minimum deposit")
	ErrMaxEntriesExceeded  = apperrors.Validation("max entries exceeded")
	ErrExceedsBalance      = apperrors.Validation("amount exceeds balance")
	ErrNothingReceived     = apperrors.Validation("nothing received")
	ErrContestClosed       = apperrors.Validation("contest closed")
	ErrNoEntries           = apperrors.Validation("no entries")
	ErrInvalidParticipant  = apperrors.Validation("invalid participant")
	ErrNotOwner            = apperrors.Forbidden("caller is not the owner")
	ErrInsufficientFunding = apperrors.InsufficientFunds("not enough funding for randomness")
	ErrOutOfRange          = apperrors.OutOfRange("index out of range")
	ErrDrawInProgress      = apperrors.Conflict("draw already in progress")
	ErrReentrantCall       = apperrors.Conflict("reentrant call")
	ErrUnknownDraw         = apperrors.Conflict("unknown or settled draw request")
	ErrOracleNotConfigured = apperrors.ServiceUnavailable("randomness oracle not configured")
	ErrJournalUnavailable  = apperrors.ServiceUnavailable("event journal unavailable")
	ErrDrawNotFound        = apperrors.NotFound("draw", "")
)
