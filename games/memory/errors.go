/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import "errors"

var (
	// ErrInvalidDuration is returned when a timer is given a negative number of seconds.
	ErrInvalidDuration = errors.New("invalid timer value")

	// ErrInvalidConfig wraps validation failures of a grid Config.
	ErrInvalidConfig = errors.New("invalid grid config")
)
