// Package session keeps transcripts of finished orchestration runs so they
// can be inspected after the HTTP response was sent. Stores implement
// TranscriptStore; the in-memory store suits tests and single-process
// servers, the SQLite store survives restarts.
package session
