// Package manager runs the registration event loop.
//
// The Manager consumes validated announcements from the announce package,
// drives allocation through the device registry, projects services onto the
// local bus via the exposer and answers each connecting device with its
// key-to-instance map on device/<clientid>/DeviceInstance. A single
// goroutine owns all of it; ordering between events is the channel's
// ordering.
package manager
