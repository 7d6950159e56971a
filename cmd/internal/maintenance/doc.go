// Package maintenance holds the privileged operations run by operators
// against the QuoteBid database: purging sessions, removing users and
// moving the schema ledger. Every operation checks its configuration before
// connecting and reports store failures as *OpError.
package maintenance
