// Package core provides the import pipeline behind every transport.
//
// It owns sessions and drives each one through the pipeline stages without
// knowing whether the caller is the HTTP server or the CLI.
//
// # Sessions
//
// [Service.CreateSession] decodes an uploaded CSV or XLSX file into a
// [table.Table], applies heuristic mapping suggestions and stores the
// session in a [SessionStore]. Sessions live in memory only; idle ones are
// evicted by [SessionStore.RunJanitor].
//
// # Pipeline
//
// A session moves through four stages:
//
//  1. uploaded: the file is decoded and mappings are editable
//  2. mapped: mappings are saved with [Service.SaveMappings]
//  3. validated: [Service.Validate] checked the mapped rows
//  4. cleaned: [Service.Clean] produced standardized rows for export
//
// Editing mappings drops validation and cleaning results. Editing a cell
// drops the cleaning result and refreshes an existing validation report.
//
// # Concurrency
//
// Decoding and provider calls run under a [Limiter] so a burst of uploads
// cannot exhaust memory or the provider's rate limit. Each session has its
// own lock; the provider call runs with the session unlocked.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE005: File errors (size, encoding, format)
//   - MAP001-MAP004: Mapping errors (provider, strategy, edits)
//   - VAL001, CLN001: Invalid rules and actions
//   - EXP001-EXP002: Export errors
//   - SES001-SES004: Session errors
//   - UPL002-UPL005: Busy, cancelled and timed out requests
package core
