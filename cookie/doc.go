// Package cookie issues and verifies the signed session cookie.
//
// Cookies are HS256 JWTs keyed with the secret from the credential file.
// A cookie issued at T is accepted while now < T + expiry_days. Tampered,
// expired or unparsable values all surface as [ErrInvalid]; callers treat
// that the same as no cookie at all.
package cookie
