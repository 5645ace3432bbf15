package tabstream

import "github.com/ukaji3/tabstream-go/pkg/tabstream/errs"

// Error sentinels, matched with errors.Is.
var (
	ErrIO                    = errs.ErrIO
	ErrFileNotFound          = errs.ErrFileNotFound
	ErrUnsupportedFormat     = errs.ErrUnsupportedFormat
	ErrMalformedRecord       = errs.ErrMalformedRecord
	ErrCorruptContainer      = errs.ErrCorruptContainer
	ErrEntryNotFound         = errs.ErrEntryNotFound
	ErrUnresolvedStringIndex = errs.ErrUnresolvedStringIndex
	ErrReaderNotOpen         = errs.ErrReaderNotOpen
	ErrWriterNotOpen         = errs.ErrWriterNotOpen
	ErrAlreadyOpen           = errs.ErrAlreadyOpen
	ErrEntryAlreadyOpen      = errs.ErrEntryAlreadyOpen
	ErrNoCurrentSheet        = errs.ErrNoCurrentSheet
	ErrSheetRowLimitExceeded = errs.ErrSheetRowLimitExceeded
	ErrInvalidSheetName      = errs.ErrInvalidSheetName
)

// Typed errors, matched with errors.As.
type (
	IOError     = errs.IOError
	RecordError = errs.RecordError
	EntryError  = errs.EntryError
	SheetError  = errs.SheetError
)
