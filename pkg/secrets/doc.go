// Package secrets encrypts channel delivery targets at rest.
//
// A delivery target (an email address, an ntfy topic URL, a webhook endpoint
// with an embedded token) is the most sensitive value this service stores.
// Targets are encrypted with AES-256-GCM under a compound key derived via
// HKDF from the application key and a per-owner scope key, so a ciphertext
// copied to another owner's row fails to decrypt.
//
//	scope := secrets.ScopeKey(userID[:])
//	enc, err := secrets.EncryptString(appKey, scope, target)
//	...
//	target, err := secrets.DecryptString(appKey, scope, enc)
//
// Keys are 32 bytes; ParseKey accepts hex or base64 from configuration and
// GenerateKey produces fresh ones for provisioning.
package secrets
