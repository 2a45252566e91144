package errcode

const (
	ErrUnknown = 20000000 + iota
	ErrNotFound
	ErrInvalid
	ErrTooMany
	ErrInternal
	ErrAIUnavailable
	ErrQuestionTooLong
	ErrIngestFailed
	ErrStoreEmpty
)
