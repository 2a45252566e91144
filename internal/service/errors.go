package service

import "errors"

// ErrRunning reports that an ingest run is already in flight.
var ErrRunning = errors.New("ingest already running")
