// Package token mints and verifies the signed access tokens issued by
// sessioncore.
//
// # Design
//
// Access tokens are JWTs carrying the subject, email, role, permission list
// and a "typ" discriminator so refresh material can never pass as an access
// token. HS256 covers single-service deployments; Ed25519 covers split
// issuer/verifier topologies, optionally with a kid-addressed verify key set
// for rotation.
//
// # Architecture boundaries
//
// This package never touches the store: token verification is purely
// cryptographic. Revocation checks belong to the engine's refresh path.
package token
