package dbus

import "errors"

// Sentinel errors for the D-Bus backend.
var (
	// ErrUnsupportedDomain is returned by Subscribe for domains the client
	// does not watch.
	ErrUnsupportedDomain = errors.New("dbus: unsupported domain")

	// ErrRegistrationRefused is returned when RegisterClient answers false.
	ErrRegistrationRefused = errors.New("dbus: daemon refused client registration")

	// ErrCallFailed wraps every failed method call.
	ErrCallFailed = errors.New("dbus: call failed")

	// ErrUnknownBus is returned by Dial for a bus other than session or system.
	ErrUnknownBus = errors.New("dbus: unknown bus")
)
