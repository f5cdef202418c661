// Package ocr extracts text from uploaded documents in the background.
//
// Work arrives through Queue.Trigger as document ids. A single worker
// goroutine consumes the queue, so at most one CPU-heavy extraction runs
// at a time; triggering is always non-blocking and deduplicates ids that
// are already waiting. Results land on the document's current version as
// ocr_text plus a terminal status.
package ocr
