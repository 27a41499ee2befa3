package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide protocol traffic counter.
var Stats = &stats{}

type stats struct {
	Accepted      atomic.Int64 // packets acknowledged with '+'
	Rejected      atomic.Int64 // packets nak'd with '-'
	Notifications atomic.Int64 // notifications delivered (never acknowledged)
	BytesRead     atomic.Int64 // cumulative bytes fed to the parser
	BytesWritten  atomic.Int64 // cumulative bytes written to the sink
}

func (s *stats) AddAccepted()     { s.Accepted.Add(1) }
func (s *stats) AddRejected()     { s.Rejected.Add(1) }
func (s *stats) AddNotification() { s.Notifications.Add(1) }
func (s *stats) AddRead(n int)    { s.BytesRead.Add(int64(n)) }
func (s *stats) AddWritten(n int) { s.BytesWritten.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs session statistics
// every 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevRead, prevWritten, prevAccepted, prevRejected int64
		for {
			select {
			case <-ticker.C:
				accepted := Stats.Accepted.Load()
				rejected := Stats.Rejected.Load()
				read := Stats.BytesRead.Load()
				written := Stats.BytesWritten.Load()

				inS := float64(read-prevRead) / 10.0
				outS := float64(written-prevWritten) / 10.0
				ackD := accepted - prevAccepted
				nakD := rejected - prevRejected

				if ackD > 0 || nakD > 0 || inS > 10 || outS > 10 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, ackD, nakD))
				}

				prevRead = read
				prevWritten = written
				prevAccepted = accepted
				prevRejected = rejected

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, ackD, nakD int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Ack: %2d+ %2d-",
		formatBytes(inS),
		formatBytes(outS),
		ackD,
		nakD,
	)
}
