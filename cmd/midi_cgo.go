//go:build cgo

package cmd

import (
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// MIDIDriver opens the rtmidi driver. The caller closes it.
func MIDIDriver() (drivers.Driver, error) {
	return rtmididrv.New()
}
