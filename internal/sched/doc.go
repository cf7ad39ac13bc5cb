// Package sched drives scheduled doses through their status lifecycle.
//
// A cron driver fires an evaluation pass once a minute and a dedup
// reset at local midnight. Passes are single-flight: a trigger that
// lands while the previous pass is still running is skipped, never
// queued, so backlog cannot build up during store outages.
package sched
