package main

import (
	"context"
	"log"
	"time"

	"paydesk/internal/workspace"
)

const workspaceCleanerInterval = time.Minute

// startWorkspaceCleaner drops workspaces idle for longer than maxIdle. Their
// persisted sessions survive and are restored on the next request.
func startWorkspaceCleaner(ctx context.Context, reg *workspace.Registry, maxIdle time.Duration, infoLog *log.Logger) {
	if reg == nil || maxIdle <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(workspaceCleanerInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := reg.EvictIdle(maxIdle); n > 0 && infoLog != nil {
					infoLog.Printf("workspace cleaner: evicted %d idle workspaces", n)
				}
			}
		}
	}()
}
