//go:build !linux

package main

import "errors"

func openInputs(cfg DevicesConfig) (KeySource, TouchSource, Poller, func(), error) {
	return nil, nil, nil, nil, errors.New("evdev input devices are only supported on linux")
}
