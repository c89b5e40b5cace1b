// Package clientstate keeps in-memory collections of CRM entities in sync
// with the backend of record.
//
// A Store holds one collection plus its loading and error state. It is
// seeded by a bulk fetch and then only changes when change events arrive:
// Create, Update and Delete call the backend and discard its reply, and the
// resulting INSERT, UPDATE or DELETE event is what updates the collection.
//
// A Subscription binds a Store to the change feed for a scope. Feed filters
// are equality only, so "sender = me OR recipient = me" is expressed as two
// filters whose streams are merged and deduplicated before reaching the
// store's single consumer loop.
//
// A Session owns every store of one user and the subscriptions opened on
// them; closing it releases everything.
package clientstate
