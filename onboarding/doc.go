// Package onboarding is the reference customer-onboarding deployment: a crm
// publisher and three saga-hosting endpoints (caf, legal, dcc) wired over one
// transport. Creating a customer fans the CustomerCreated event out to all
// three; caf and legal simulate their external checks with timeouts and
// publish completion events, and dcc consolidates both into one record per
// customer, completing when credit and legal checks are done.
package onboarding
