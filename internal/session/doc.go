// Package session holds the master key for the lifetime of a session.
//
// A Manager is constructed explicitly and passed to whoever needs the key;
// there is no package-level instance. The key moves through three states:
//
//	Unset ──SetMasterKey──▶ Loaded ──ClearMasterKey / expiry──▶ Cleared
//	                          ▲                                    │
//	                          └────────SetMasterKey / Restore──────┘
//
// # Persistence
//
// Every transition is mirrored into a Store as a single Record: the active
// flag, the load and expiry timestamps and, for exportable keys, the key
// material. FileStore lets successive CLI invocations share one session;
// MemoryStore keeps everything in process.
//
// Memory and store can drift apart (a process exits, a file is removed by
// hand). Reconcile repairs the drift and is called at the start of every
// command; long-running hosts can call Start to reconcile on a ticker.
//
// # Time
//
// Expiry and reconciliation run on a quartz.Clock so tests can drive them
// with quartz.NewMock.
package session
