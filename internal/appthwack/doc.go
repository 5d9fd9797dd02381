// Package appthwack is a client for the AppThwack remote device-testing
// service. A Session lists projects; a Project lists device pools and
// schedules runs; a Run is polled for its status and its Result tree.
//
// Entities that can reach the service are only ever produced by a Session
// (or by an entity a Session produced). Their zero values are not usable.
package appthwack
