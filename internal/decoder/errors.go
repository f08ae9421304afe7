package decoder

import "errors"

var (
	// ErrNoOutputLayer is returned by Setup when neither a vocabulary size
	// nor an output projection is supplied.
	ErrNoOutputLayer = errors.New("decoder: one of vocab size and output layer must be set")

	// ErrScheduledSampling is returned when a mixed ground-truth/prediction
	// training input is requested.  This decoder supports only straight
	// teacher-forced or straight self-fed decoding.
	ErrScheduledSampling = errors.New("decoder: scheduled sampling is not supported by this decoder")

	// ErrNotSetUp is returned by operations that need the output layer
	// before Setup was called.
	ErrNotSetUp = errors.New("decoder: output layer not initialised, call Setup first")

	// ErrDTypeUnsupported is returned by InitialCache for any numeric type
	// other than float32.
	ErrDTypeUnsupported = errors.New("decoder: unsupported cache dtype")
)
