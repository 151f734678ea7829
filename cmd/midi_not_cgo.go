//go:build !cgo

package cmd

import (
	"errors"

	"gitlab.com/gomidi/midi/v2/drivers"
)

var errNoCgo = errors.New("MIDI input needs a build with cgo")

func MIDIDriver() (drivers.Driver, error) {
	// rtmidi is a cgo library
	return nil, errNoCgo
}
