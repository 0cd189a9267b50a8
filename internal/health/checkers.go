package health

import (
	"context"
	"fmt"
	"strings"

	"github.com/codebridge/wabridge/internal/cache"
	"github.com/codebridge/wabridge/internal/session"
)

// SessionDirectory is the slice of the session directory the checker needs.
type SessionDirectory interface {
	HealthCheck() session.HealthReport
}

// EditorProbe is the slice of the editor client the checker needs.
type EditorProbe interface {
	Health(ctx context.Context) error
}

// SessionChecker reports the aggregate session health. Sessions with issues
// degrade the bridge but do not make it unhealthy: the HTTP and MCP
// surfaces keep working.
func SessionChecker(dir SessionDirectory) Checker {
	return CheckFunc{
		ComponentName: "sessions",
		Fn: func(ctx context.Context) (Status, string) {
			report := dir.HealthCheck()
			if report.Healthy {
				return StatusHealthy, fmt.Sprintf("%d sessions, %d connected",
					report.Stats.Total, report.Stats.Connected)
			}
			return StatusDegraded, strings.Join(report.Issues, "; ")
		},
	}
}

// CacheChecker reports cache size and effectiveness.
func CacheChecker(c *cache.Cache) Checker {
	return CheckFunc{
		ComponentName: "cache",
		Fn: func(ctx context.Context) (Status, string) {
			stats := c.Stats()
			return StatusHealthy, fmt.Sprintf("%d entries, %d hits, %d misses",
				stats.Size, stats.Hits, stats.Misses)
		},
	}
}

// EditorChecker probes the editor extension.
func EditorChecker(probe EditorProbe) Checker {
	return CheckFunc{
		ComponentName: "editor",
		Fn: func(ctx context.Context) (Status, string) {
			if err := probe.Health(ctx); err != nil {
				return StatusUnhealthy, err.Error()
			}
			return StatusHealthy, "extension reachable"
		},
	}
}
