// Package scheduler runs the recurring reminder and cleanup sweepers.
// The reminder pass delivers reminders of started events; the cleanup pass
// waits for it and then purges events that have ended.
package scheduler
