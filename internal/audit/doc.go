// Package audit provides the audit trail for docvault operations.
//
// Every significant operation (provision, unlock, upload, download, preview,
// rotate and so on) is recorded in a vault-level log. Entries describe what
// happened to which document; they never carry passwords, key material or
// document content.
//
// # Log Format
//
// The audit log is stored as JSON Lines (one JSON object per line) at:
//
//	.docvault/audit.jsonl
//
// # Usage
//
//	trail := audit.New(settings.AuditPath, account.Identity)
//	entry := trail.Entry(audit.OpDownload)
//	entry.DocumentID = id
//	trail.Log(entry)
//
// # Failure Handling
//
// Audit logging is best-effort. If logging fails (permissions, disk full,
// etc.), the operation continues without error.
//
// # Reading Logs
//
// Use ReadEntries to parse the audit log for display or analysis.
// Malformed entries are silently skipped to handle partial writes.
package audit
