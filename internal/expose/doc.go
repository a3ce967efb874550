// Package expose maps allocated services to local bus objects.
//
// The schema catalog is a static table from service type to attribute set;
// the Exposer registers one bus object per active service at
// service/<type>/<instance> and tears it down on release. Service types
// missing from the catalog still get a placeholder object so the device
// stays visible to bus consumers.
package expose
