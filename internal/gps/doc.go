// Package gps acquires position fixes from one of three sources
// (network NMEA feed, serial NMEA receiver, or a gpsd daemon) and
// publishes the latest valid fix as an atomic snapshot with staleness
// semantics. Exactly one source is active for the process lifetime.
package gps
