// Package store is the storage collaborator: it persists encrypted document
// bodies, their metadata and the account's provisioning payload.
//
// Nothing in this package handles plaintext or unwrapped keys. Records carry
// base64 wrapped DEKs and IVs exactly as uploaded, and Record.Scheme is where
// a stored document is classified as a DEK or a legacy document.
//
// Writes go through a temporary file and a rename. ReplaceDEKs, used by key
// rotation, restores the previous metadata of every document it already
// touched when a later write fails.
package store
