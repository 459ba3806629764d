// Package notifier sends desktop notifications for build outcomes
package notifier

import (
	"fmt"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/pybundle/pybundle/pkg/logger"
)

// Config represents notification configuration
type Config struct {
	Enabled      bool
	SuccessSound bool
	FailureSound bool
}

// BuildNotifier sends desktop notifications when enabled
type BuildNotifier struct {
	enabled      bool
	successSound bool
	failureSound bool
	logger       logger.Logger
}

// New creates a new build notifier
func New(config Config, log logger.Logger) *BuildNotifier {
	return &BuildNotifier{
		enabled:      config.Enabled,
		successSound: config.SuccessSound,
		failureSound: config.FailureSound,
		logger:       log,
	}
}

// BuildSucceeded notifies that a build completed
func (n *BuildNotifier) BuildSucceeded(product string, duration time.Duration) {
	if !n.enabled {
		return
	}
	n.send("✅ Bundle Ready", fmt.Sprintf("%s built in %s", product, formatDuration(duration)), n.successSound)
}

// BuildFailed notifies that a build failed
func (n *BuildNotifier) BuildFailed(product string, err error) {
	if !n.enabled {
		return
	}
	n.send("❌ Bundle Failed", fmt.Sprintf("%s: %v", product, err), n.failureSound)
}

func (n *BuildNotifier) send(title, message string, sound bool) {
	if err := beeep.Notify(title, message, ""); err != nil && n.logger != nil {
		n.logger.Debug("Failed to send notification", logger.WithField("error", err))
	}
	if sound {
		if err := beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration); err != nil && n.logger != nil {
			n.logger.Debug("Failed to play sound", logger.WithField("error", err))
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
