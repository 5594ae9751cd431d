package store

import "errors"

// Domain errors returned by the Panama tables.
//
// Row validation errors are returned by Save before any statement runs, so
// nothing is written and the rows can be corrected in place.
var (
	// ErrTitleRequired is returned when a title row has a blank title.
	ErrTitleRequired = errors.New("store: title is required")

	// ErrWrittenRequired is returned when a title row has no written date.
	ErrWrittenRequired = errors.New("store: written date is required")

	// ErrNameRequired is returned for publishers, tags, colors and settings without a name.
	ErrNameRequired = errors.New("store: name is required")

	// ErrFileNameRequired is returned when a title version has no file name.
	ErrFileNameRequired = errors.New("store: version file name is required")

	// ErrInvalidStatus is returned for an unknown submission status.
	ErrInvalidStatus = errors.New("store: invalid submission status")

	// ErrResponseBeforeSubmission is returned when a batch response predates its submission.
	ErrResponseBeforeSubmission = errors.New("store: response date is before submission date")

	// ErrNegativeAmount is returned for a negative fee or award.
	ErrNegativeAmount = errors.New("store: fee and award must not be negative")

	// ErrNoPassphrase is returned when credential passwords are used without a passphrase.
	ErrNoPassphrase = errors.New("store: credential passphrase not configured")

	// ErrSealedPassword is returned when a stored password cannot be opened,
	// usually because the passphrase differs from the one it was sealed with.
	ErrSealedPassword = errors.New("store: cannot open sealed password")
)
