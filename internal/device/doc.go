// Package device holds the identity core of the registry: stable instance
// number allocation for announced services and their persisted mappings.
//
// A service is identified by the composite key (clientID, serviceKey,
// serviceType). The Registry resolves that key to a device instance number
// that is unique per service type, smallest-available on first sight and
// immutable afterwards. Mappings are persisted through the Repository
// interface; SQLiteRepository is the production implementation.
//
// The Registry carries no locking. It is owned by the manager's event loop
// and must only be called from that goroutine.
package device
