// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package agentserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lfbridge/lfbridge/internal/backend"
	"github.com/lfbridge/lfbridge/internal/logmodel"
)

// Validate recomputes the fingerprint over every snapshot range the backend
// has recorded for log, replaying each range straight from whichever proxy
// connection currently serves it, and compares the result against the
// fingerprint the backend already has on file. It reports false — not an
// error — the first time a replayed range's fingerprint disagrees; a
// mismatch is a finding to report, not a failure to run the check.
func Validate(ctx context.Context, client backend.Client, registry *ConnRegistry, log logmodel.Log, logger *slog.Logger) (bool, error) {
	snapshots, err := client.GetSnapshotsForLog(ctx, log.ID)
	if err != nil {
		return false, fmt.Errorf("fetching snapshot history for %s: %w", log.Name, err)
	}

	for _, snap := range snapshots {
		records, err := AgentContentRequest(ctx, registry, log.Name, snap.FirstLine, snap.LastLine)
		if err != nil {
			return false, fmt.Errorf("replaying [%d,%d] of %s: %w", snap.FirstLine, snap.LastLine, log.Name, err)
		}

		got := logmodel.FoldFingerprint(records)
		if got != snap.Fingerprint {
			logger.Warn("fingerprint mismatch",
				"log", log.Name,
				"first_line", snap.FirstLine,
				"last_line", snap.LastLine,
				"expected", snap.Fingerprint,
				"got", got,
			)
			return false, nil
		}
	}

	logger.Debug("log verified", "log", log.Name, "snapshots_checked", len(snapshots))
	return true, nil
}
