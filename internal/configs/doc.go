// Package configs manages vault settings and configuration for docvault.
//
// A vault is any directory containing a .docvault directory:
//
//	.docvault/
//	  config.toml     vault identity and tunables
//	  account.toml    key derivation and validation payload
//	  documents/      one directory per encrypted document
//	  audit.jsonl     audit trail
//	  rotation.toml   only while a key rotation commits
//
// # Settings
//
// InitVaultSettings walks up from a starting directory to the nearest
// .docvault and resolves every path above. Session state lives outside the
// vault, in a per-user runtime directory (see SessionDir).
//
// # Configuration
//
// config.toml has one section per component:
//
//	[vault]     uuid, name, creation time
//	[kdf]       iterations for new key derivations
//	[session]   timeout, reconcile_interval, max_restore_attempts
//	[preview]   max_width, max_height, noise_amplitude, watermark_opacity, duration
//	[rotation]  concurrency
//
// Missing values are filled by ApplyDefaults; durations are written as Go
// duration strings ("30m"). Unknown keys are rejected.
package configs
