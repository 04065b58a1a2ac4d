package scanner

import "errors"

var (
	ErrDeviceOpenFailed = errors.New("failed to open device")
	ErrNoMatchingDevice = errors.New("no matching input device")
	ErrExclusiveDenied  = errors.New("exclusive claim denied")
	ErrScannerStopped   = errors.New("scanner stopped")
)
