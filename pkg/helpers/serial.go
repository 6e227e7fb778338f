// Blendix Serial Core
// Copyright (c) 2026 The Blendix Serial Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Blendix Serial Core.
//
// Blendix Serial Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Blendix Serial Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Blendix Serial Core.  If not, see <http://www.gnu.org/licenses/>.

package helpers

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"go.bug.st/serial"
)

// PortLister enumerates the serial ports present on the system.
type PortLister func() ([]string, error)

// usbSerialPrefixes are the device names USB serial adapters and
// microcontroller boards show up under.
var usbSerialPrefixes = map[string][]string{
	"linux":   {"/dev/ttyUSB", "/dev/ttyACM"},
	"darwin":  {"/dev/tty.usbserial", "/dev/tty.usbmodem", "/dev/cu.usbserial", "/dev/cu.usbmodem"},
	"windows": {"COM"},
}

// FilterSerialDevices keeps the ports that look like USB serial devices
// for goos. Unknown platforms keep every port. The result is sorted.
func FilterSerialDevices(goos string, ports []string) []string {
	prefixes, ok := usbSerialPrefixes[goos]
	devices := make([]string, 0, len(ports))
	for _, p := range ports {
		if !ok || hasAnyPrefix(p, prefixes) {
			devices = append(devices, p)
		}
	}
	slices.Sort(devices)
	return slices.Compact(devices)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// GetSerialDeviceList returns the USB serial devices on this system. With
// all set, every port the OS reports is returned.
func GetSerialDeviceList(list PortLister, all bool) ([]string, error) {
	if list == nil {
		list = serial.GetPortsList
	}
	ports, err := list()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports list on %s: %w", runtime.GOOS, err)
	}
	if all {
		return FilterSerialDevices("", ports), nil
	}
	return FilterSerialDevices(runtime.GOOS, ports), nil
}
