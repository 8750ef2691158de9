package server

import (
	"fmt"
	"time"

	"github.com/verisched/verisched/scheduler/domain"
)

const (
	// How often step is called in the loop.
	DefaultTickRate = 250 * time.Millisecond

	// Full reconciliation against the server every so many steps (~10s).
	DefaultReconcileEvery = 40

	// Bound on any single call to the job server or the node directory.
	DefaultRequestTimeout = 10 * time.Second

	// Wait after an internal error before the scheduler starts over.
	DefaultRestartCooldown = 10 * time.Second

	// Queued notifications; beyond that they are dropped and picked up by
	// the next reconciliation.
	DefaultNotificationBuffer = 1024

	// Notifications handled per step.
	DefaultMaxNotificationsPerStep = 1024

	// Ids remembered after their item was cleared.
	DefaultRecentlyCleared = 10000
)

// Config holds the loop settings.
//
// ProductionMode - if true, an internal error makes the loop cancel all
// outstanding work, wait RestartCooldown and start over with fresh state.
// Otherwise Run returns the error, which is what a debugging session wants.
type Config struct {
	TickRate                time.Duration
	ReconcileEvery          int
	RequestTimeout          time.Duration
	ProductionMode          bool
	RestartCooldown         time.Duration
	NotificationBuffer      int
	MaxNotificationsPerStep int
	RecentlyCleared         int

	// Tools installed on the workers, submitted once after every start.
	Tools []domain.Tool
}

func (c Config) withDefaults() Config {
	if c.TickRate <= 0 {
		c.TickRate = DefaultTickRate
	}
	if c.ReconcileEvery <= 0 {
		c.ReconcileEvery = DefaultReconcileEvery
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RestartCooldown <= 0 {
		c.RestartCooldown = DefaultRestartCooldown
	}
	if c.NotificationBuffer <= 0 {
		c.NotificationBuffer = DefaultNotificationBuffer
	}
	if c.MaxNotificationsPerStep <= 0 {
		c.MaxNotificationsPerStep = DefaultMaxNotificationsPerStep
	}
	if c.RecentlyCleared <= 0 {
		c.RecentlyCleared = DefaultRecentlyCleared
	}
	return c
}

func (c Config) String() string {
	return fmt.Sprintf("server.Config: TickRate: %s, ReconcileEvery: %d, RequestTimeout: %s, ProductionMode: %t, "+
		"RestartCooldown: %s, NotificationBuffer: %d, RecentlyCleared: %d, Tools: %v",
		c.TickRate, c.ReconcileEvery, c.RequestTimeout, c.ProductionMode, c.RestartCooldown,
		c.NotificationBuffer, c.RecentlyCleared, c.Tools)
}
