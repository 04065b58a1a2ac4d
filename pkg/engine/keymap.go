package engine

import "time"

// USB HID keyboard usage codes for the supported barcode alphabet.
// Codes outside this set are not decoded; scanners emitting other
// characters will have them dropped from the reassembled barcode.
const (
	UsageA      = 0x04
	UsageZ      = 0x1D
	Usage1      = 0x1E
	Usage9      = 0x26
	Usage0      = 0x27 // not adjacent to '9' in the usage table
	UsageEnter  = 0x28
	UsageSpace  = 0x2C
	UsageMinus  = 0x2D
	UsageEquals = 0x2E
	UsageComma  = 0x36
	UsagePeriod = 0x37
)

// Phase distinguishes key-press from key-release events. Only presses
// advance the engine; releases are delivered so sources can report a
// complete event stream but are ignored everywhere.
type Phase uint8

const (
	Pressed Phase = iota
	Released
)

// KeyEvent is a single raw key event as delivered by an input source.
type KeyEvent struct {
	Usage uint16
	Phase Phase
	Time  time.Time
}

// IsTerminator reports whether the usage code commits the current scan.
func IsTerminator(usage uint16) bool {
	return usage == UsageEnter
}

// DecodeUsage maps a HID usage code to its printable character. The
// second return value is false for any code outside the supported set,
// including Enter (see IsTerminator).
func DecodeUsage(usage uint16) (byte, bool) {
	switch {
	case usage >= UsageA && usage <= UsageZ:
		return 'a' + byte(usage-UsageA), true
	case usage >= Usage1 && usage <= Usage9:
		return '1' + byte(usage-Usage1), true
	case usage == Usage0:
		return '0', true
	case usage == UsageSpace:
		return ' ', true
	case usage == UsageMinus:
		return '-', true
	case usage == UsageEquals:
		return '=', true
	case usage == UsageComma:
		return ',', true
	case usage == UsagePeriod:
		return '.', true
	}
	return 0, false
}
