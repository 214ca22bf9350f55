// Package monitor evaluates consumer groups against their thresholds.
//
// One scan pass pulls the full threshold map from a Registry, asks a
// StatusProvider for each group's live consumer count and backlog, and hands
// every breach to a Dispatcher as rendered alert text.
//
// # Failure isolation
//
// Nothing returned by a collaborator aborts a pass except a registry failure,
// which ends that pass before any lookup. A failed lookup skips one group; a
// failed channel is the dispatcher's concern. RunPass never returns an error:
// the outcome is described by the PassReport.
//
// # Audit logging
//
// Every evaluated group is logged (op=look) whether or not it breached, and
// every breach is logged again with its reason. "Evaluated" and "alerted" are
// counted separately in PassReport.
package monitor
