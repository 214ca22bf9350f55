// Package registry stores per-group monitor thresholds.
//
// Drivers:
//   - file: a JSON or YAML map of group name to {minCount, maxDiffTotal},
//     re-read on every query so edits apply on the next pass
//   - sqlite: a consumer_monitor table in a SQLite database file
//
// Both drivers support Put and Delete; mqwatch -set-threshold and
// -delete-threshold edit the configured registry through them.
package registry
