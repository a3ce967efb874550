// Package announce receives and validates device status announcements.
//
// Devices publish JSON to device/<clientid>/Status declaring themselves
// connected (with a services map) or disconnected. The Listener checks each
// payload against a JSON Schema, converts it to an Event and hands it to the
// manager's event loop over a channel. Anything that fails validation is
// logged and dropped on the spot.
package announce
