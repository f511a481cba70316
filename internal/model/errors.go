package model

import "errors"

// Configuration errors. They are returned before any AWS API call is made.
var (
	ErrMissingRegion      = errors.New("region is required")
	ErrPartialCredentials = errors.New("access key and secret key must be given together")
	ErrInvalidService     = errors.New("invalid service")
	ErrMissingInstance    = errors.New("instance id is required")
	ErrInvalidPeriod      = errors.New("period must be greater than zero")
	ErrInvalidStatistic   = errors.New("invalid statistic")
	ErrInvalidMetric      = errors.New("invalid metric name")
	ErrInvalidUnit        = errors.New("invalid unit")
	ErrInvalidTimeRange   = errors.New("invalid time range")
)
