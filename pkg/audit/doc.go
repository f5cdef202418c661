// Package audit records state-changing actions in a tamper-evident,
// append-only log.
//
// Entries for one organization form a hash chain: each entry's log_hash
// covers the previous entry's hash plus the entry's own core fields, so a
// retroactive edit, deletion or reordering anywhere in the middle of the
// chain is detectable by re-walking it.
//
// Recording is fire-and-forget: an audit failure is counted and logged but
// never propagates to the business action that triggered it. Writes for the
// same organization are serialized through a per-organization lock so the
// chain stays strictly linear under concurrent requests.
package audit
