package jobs

import "errors"

var (
	ErrInvalidJobType    = errors.New("invalid job type")
	ErrInvalidJobPayload = errors.New("invalid job payload")
)
