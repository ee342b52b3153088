// Package rotation replaces a vault's master key.
//
// Rotation never touches document bodies. Every DEK is unwrapped with the
// key derived from the old password and wrapped again under a key derived
// from the new one, with fresh salt. The re-wrapped DEKs are built entirely
// in memory first; a single failure aborts the rotation before anything is
// written. Commit order is documents then account, and a failed account
// write restores the previous DEKs.
//
// When a session manager is attached, the rotation runs inside
// session.Manager.Exclusive so no encrypt or decrypt call observes a mix of
// old and new keys, and the new key becomes the session key on success.
package rotation
