// Package store holds the credential store and its durable YAML form.
//
// # File layout
//
//	credentials:
//	  usernames:
//	    <username>:
//	      email: <string>
//	      name: <string>
//	      password: <hash>
//	cookie:
//	  name: <string>
//	  key: <signing secret>
//	  expiry_days: <int>
//	preauthorized:
//	  emails: [<string>, ...]
//
// The preauthorized section is optional and omitted when empty. Marshal
// output is deterministic, so a store that is read and written back
// without mutation produces the same bytes.
//
// # Concurrency
//
// A [CredentialStore] belongs to one invocation. Cross-process writers are
// serialized with a [Locker]: [FileLocker] for a single host, [RedisLocker]
// when several hosts share the file.
//
// # What this package must NOT do
//
//   - Hash or verify passwords.
//   - Decide who may mutate which record.
package store
