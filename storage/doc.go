// Package storage provides interfaces and shared types for persisting user
// credentials and in-flight login attempts.
//
// The storage package defines the two stores used throughout the xauth library:
//   - CredentialStore: owns the map from user identifier to OAuth2 credential
//   - LoginStore: holds pending authorization attempts until the callback
//     consumes them
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development and testing
//   - storage/mock: Mock storage for unit testing
//   - storage/valkey: Valkey/Redis-compatible storage for deployments where
//     sessions must survive process restarts
package storage
