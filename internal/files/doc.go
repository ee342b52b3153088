// Package files selects the local files a command operates on and sniffs
// their content type.
//
// Patterns may be literal paths, directories (walked recursively) or
// doublestar globs such as "scans/**/*.pdf". The .docvault directory is
// always skipped.
package files
