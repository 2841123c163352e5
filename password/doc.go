// Package password implements password hashing, verification and the
// strength policy for new passwords.
//
// # Output format
//
// New hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.Verify] also accepts bcrypt hashes ($2a$, $2b$, $2y$) found in
// credential files written by other tools. [Argon2.NeedsUpgrade] reports
// those as due for replacement.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Log plaintext passwords or hashes.
package password
