// Package ticket provides the helpdesk ticket domain: tickets, their triage
// results and activity history, the Store interface that persists them, and
// the Service that implements ticket CRUD on top of a Store.
package ticket
