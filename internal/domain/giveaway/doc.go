// Package giveaway contains the domain model of the Amazo-World referral giveaway.
//
// The package defines:
//
//   - Entities: Event, Entry
//   - Derived values: tickets, Standing, HistoryItem, Winner, EventStats
//   - Interfaces: Repository (the data store contract), AtomicRegistrar, Clock,
//     ConversationStore (registration scratch data)
//
// # Rules
//
// At most one Event is active at any time. An event is open while it is
// active and the current UTC time has not passed 23:59:59 of its end day.
//
// A user has at most one Entry per event. The wallet address is fixed at
// registration. When a user registers through someone else's referral link,
// that referrer's entry in the same event gains exactly one referral, and the
// referrer's ticket count becomes 1 + referrals:
//
//	entry := &Entry{UserID: 42, EventID: 7, ReferralCount: 3}
//	entry.TotalTickets() // 4
//
// Winners are drawn by a stored procedure that weights entries by tickets.
// This package never computes the draw itself.
//
// The package depends only on the standard library and shared errors.
package giveaway
