// Package influxdb records the registration journal in InfluxDB v2.
//
// The journal is optional observability: connect/disconnect events and
// fresh instance allocations are written as points so dashboards can chart
// fleet activity over time. It carries no protocol state - the registry is
// fully functional with InfluxDB disabled, and write failures never affect
// announcement processing (writes are batched and asynchronous).
package influxdb
