// Package dbus implements audio.Backend against the ReSet daemon on D-Bus.
//
// Methods are called on the daemon object (default
// org.Xetibo.ReSet.Daemon at /org/Xetibo/ReSet/Daemon) through the
// org.Xetibo.ReSet.Audio and org.Xetibo.ReSet.Daemon interfaces. Records
// travel as D-Bus structs whose field order matches audio.Device (ussqaubi),
// audio.Stream (ussuqaubb) and audio.Card (usa(ssb)s), so they are stored
// directly with dbus.Store.
//
//	client, err := dbus.Dial(cfg.Backend.DBus)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package dbus
