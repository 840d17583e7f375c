// Package storage keeps an append-only journal of publications and cycles.
//
// The journal is an audit trail for operators (/status). It is never read
// back to decide what to publish.
package storage
