// Package documents manages case documents and their append-only version
// history. A document always has a current version pointer; uploading or
// restoring creates a new immutable version row and moves the pointer.
// OCR text lives on the version row and is filled in asynchronously.
package documents
