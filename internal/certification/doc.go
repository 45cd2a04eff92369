// Package certification builds and verifies certifications.
//
// A certification is the tuple {producer, amount, requestId, expiry, certifier} signed by the certifier.
// The signature covers an EIP-712 typed-data digest, so it is bound to the signing domain
// (name, version, chain id and verifying contract). A certification issued for one deployment does not verify against another.
//
// A signature is only valid when the recovered signer equals the certifier named in the payload.
//
// Certifier private keys are held by a Keyring and are only reachable inside Keyring.WithSigner.
package certification
