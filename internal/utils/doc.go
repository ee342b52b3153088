// Package utils provides shared helpers for docvault.
//
// # Filesystem
//
//   - FindVaultRoot: walks up directories to find .docvault
//   - WriteFileAtomic: temp file plus rename
//   - FormatPaths, FormatSize: human-readable output
//
// # System
//
//   - GetUsername, GetHostname, DefaultIdentity
//   - SanitizeName: normalizes names for safe file names
//
// # Terminal and I/O
//
//   - ReadPassword, ReadNewPassword: hidden prompts via golang.org/x/term
//   - ReadPasswordFromStdin: one password per line for scripted use
//   - TerminalSize, ClearScreen, WriteToTTY
package utils
