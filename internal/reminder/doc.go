// Package reminder is the reminder core: duration parsing and formatting,
// the delayed-delivery Scheduler, and the Service boundary used by
// transports.
//
// The Store is the source of truth. The Scheduler only holds timers derived
// from it and is rebuilt by Service.Startup on every process start.
package reminder
