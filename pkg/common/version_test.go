package common

import (
	"testing"
)

const devVersion = "dev"

func TestGetVersion_Development(t *testing.T) {
	originalVersion := VERSION
	defer func() {
		VERSION = originalVersion
	}()

	VERSION = devVersion

	if version := GetVersion(); version != "0.1.0-dev" {
		t.Errorf("Expected development version '0.1.0-dev', got '%s'", version)
	}
}

func TestGetVersion_Release(t *testing.T) {
	originalVersion := VERSION
	defer func() {
		VERSION = originalVersion
	}()

	VERSION = "1.2.3"

	if version := GetVersion(); version != "1.2.3" {
		t.Errorf("Expected version '1.2.3', got '%s'", version)
	}
}
