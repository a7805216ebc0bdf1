// Package core holds the sync domain: jobs and their state machine, shadow
// records, webhook registrations and delivery logs, along with the store
// contracts, error taxonomy and configuration shared by the queue, resolver,
// webhooks and importer packages. Core must not depend on storage or
// transport adapters.
package core
