package workflows

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/PolarWolf314/docvault/internal/audit"
)

// LogOptions configures the log workflow.
type LogOptions struct {
	// Limit is the maximum number of entries to return, most recent kept.
	// 0 means no limit.
	Limit int

	// Reverse orders entries from most recent to oldest.
	Reverse bool

	// Operations filters entries by operation, comma-separated.
	Operations string

	// DocumentID filters entries by document id prefix.
	DocumentID string

	// Since keeps entries on or after this date (YYYY-MM-DD).
	Since string
}

// LogResult contains the outcome of a log operation.
type LogResult struct {
	Entries []audit.Entry
	Total   int
}

// Log reads and filters the vault's audit trail.
func (v *Vault) Log(ctx context.Context, opts LogOptions) (*LogResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := v.Trail.ReadEntries()
	if err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}
	result := &LogResult{Total: len(entries)}

	filtered := entries
	if opts.Operations != "" {
		var ops []string
		for _, op := range strings.Split(opts.Operations, ",") {
			ops = append(ops, strings.ToLower(strings.TrimSpace(op)))
		}
		filtered = filter(filtered, func(e audit.Entry) bool {
			return slices.Contains(ops, strings.ToLower(e.Operation))
		})
	}
	if opts.DocumentID != "" {
		filtered = filter(filtered, func(e audit.Entry) bool {
			return e.DocumentID != "" && strings.HasPrefix(e.DocumentID, opts.DocumentID)
		})
	}
	if opts.Since != "" {
		since, err := time.Parse("2006-01-02", opts.Since)
		if err != nil {
			return nil, fmt.Errorf("--since date format invalid, use YYYY-MM-DD")
		}
		filtered = filter(filtered, func(e audit.Entry) bool {
			ts, err := time.Parse(audit.TimestampFormat, e.Timestamp)
			return err == nil && !ts.Before(since)
		})
	}

	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[len(filtered)-opts.Limit:]
	}
	if opts.Reverse {
		slices.Reverse(filtered)
	}

	result.Entries = filtered
	return result, nil
}

func filter(entries []audit.Entry, keep func(audit.Entry) bool) []audit.Entry {
	var out []audit.Entry
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
