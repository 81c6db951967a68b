// Package tokenstore persists the CRM refresh token.
//
// Exactly one record exists per deployment: every Write replaces the previous
// token (upsert). Supported backends:
//   - File: local JSON document with atomic writes and 0600 permissions
//   - Keyring: OS-native credential storage
//   - Memory: process-local, for tests and dry runs
//
// Database backends live in subpackages (postgres, sqlite, dynamo, mongo).
// Any backend can be wrapped with NewEncryptedStore to keep the token value
// encrypted at rest.
package tokenstore
