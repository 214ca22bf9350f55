// Package scheduler triggers jobs on cron or fixed-interval schedules.
//
// Runs of the same job never overlap: a trigger that arrives while the
// previous run is still going is skipped and logged. Panics inside a job are
// recovered and reported as failures so later triggers still fire.
package scheduler
