// Package identity owns QuoteBid user accounts: creation, lookup, removal
// and password authentication.
//
// Stores never see plain passwords; Authenticator hashes and verifies them
// through cmd/security/password.
package identity
