package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeUsage_Letters(t *testing.T) {
	for usage := uint16(UsageA); usage <= UsageZ; usage++ {
		ch, ok := DecodeUsage(usage)
		assert.True(t, ok, "usage 0x%02x should decode", usage)
		assert.Equal(t, byte('a')+byte(usage-UsageA), ch)
	}
}

func TestDecodeUsage_Digits(t *testing.T) {
	// 1-9 are contiguous, 0 sits after 9 in the usage table.
	for usage := uint16(Usage1); usage <= Usage9; usage++ {
		ch, ok := DecodeUsage(usage)
		assert.True(t, ok)
		assert.Equal(t, byte('1')+byte(usage-Usage1), ch)
	}

	ch, ok := DecodeUsage(Usage0)
	assert.True(t, ok)
	assert.Equal(t, byte('0'), ch)
}

func TestDecodeUsage_Symbols(t *testing.T) {
	tests := []struct {
		usage uint16
		want  byte
	}{
		{UsageSpace, ' '},
		{UsageMinus, '-'},
		{UsageEquals, '='},
		{UsageComma, ','},
		{UsagePeriod, '.'},
	}

	for _, tt := range tests {
		ch, ok := DecodeUsage(tt.usage)
		assert.True(t, ok, "usage 0x%02x", tt.usage)
		assert.Equal(t, tt.want, ch)
	}
}

func TestDecodeUsage_Unmapped(t *testing.T) {
	// Escape, backspace, tab, brackets, shift modifier range, F-keys.
	unmapped := []uint16{0x00, 0x29, 0x2A, 0x2B, 0x2F, 0x30, 0x31, 0x32,
		0x33, 0x34, 0x35, 0x38, 0x3A, 0x45, 0xE1, 0xFF}

	for _, usage := range unmapped {
		_, ok := DecodeUsage(usage)
		assert.False(t, ok, "usage 0x%02x should not decode", usage)
	}
}

func TestDecodeUsage_EnterIsNotPrintable(t *testing.T) {
	_, ok := DecodeUsage(UsageEnter)
	assert.False(t, ok)
	assert.True(t, IsTerminator(UsageEnter))
	assert.False(t, IsTerminator(UsageA))
	assert.False(t, IsTerminator(UsageSpace))
}
