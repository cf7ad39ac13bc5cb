package storage

// Package storage is the persistence layer behind the dose scheduler.
//
// It holds three record kinds:
//   - Owners (the accounts doses and notifications are namespaced under)
//   - Doses (one row per owner/medication/date)
//   - Notifications (in-app records of dose transitions)
