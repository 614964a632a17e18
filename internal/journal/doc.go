// Package journal persists run state transitions for operator review and
// scheduled reporting. It is observability only: the marker files inside
// run directories remain the sole source of truth for run state, and a
// journal write failure never affects scheduling.
package journal
