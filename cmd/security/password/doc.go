// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use the PHC string form
//
//	$argon2id$v=19$m=<KiB>,t=<iterations>,p=<lanes>$<salt>$<key>
//
// and are treated as untrusted input on Verify: malformed strings and
// parameters far above the configured cost are refused.
package password
