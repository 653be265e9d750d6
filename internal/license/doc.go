// Package license implements local-first license and trial management.
//
// # Architecture Overview
//
// The package composes three collaborators from internal/security:
//
//	- Signer: HMAC-SHA256 and RSA-PSS-SHA256 license key signatures
//	- Store: AES-256-GCM encrypted persistence of license state
//	- Generator: machine identification and hardware fingerprinting
//
// behind one Manager facade exposing key generation, key validation,
// install/revoke, trial accounting and entitlement queries.
//
// # License Key Format
//
// A license key is the base64url encoding of nine pipe-delimited fields:
//
//	product_id|customer_id|machine_id|start_date|end_date|days|license_type|sigtype|signature
//
// Dates use the fixed format 20060102T150405 with second precision and no
// timezone suffix; they are implicitly local time of the generating machine,
// which is a documented portability caveat. The signature covers the first
// eight fields joined by pipes. Keys are bound at generation time to the
// machine that ran the generator, so this scheme fits server-side or offline
// issuance, not generate-on-server/redeem-on-client flows.
//
// # License Lifecycle
//
//	absent -> installed -> (valid | expired) -> revoked -> absent
//
// Exactly one license is resident per product and machine; the last install
// wins and no history is retained.
//
// # Trials
//
// Trials come in two flavors: per-user entries in an encrypted trial table,
// and a machine-wide first-install marker. Both use fractional-day
// arithmetic so sub-day trials expire at the right wall-clock moment. A
// user's first_install_date is immutable once written; later updates cannot
// move it. Trial table updates are serialized with an in-process mutex only.
// Two separate processes racing on the trials file can lose updates; this is
// a known gap, not a guarantee.
//
// # Error Reporting
//
// Expected business outcomes (a key that does not verify, an expired
// license) are returned as (ok, reason) results. Bad inputs and deployment
// misconfiguration (RSA mode without a key) are returned as errors from the
// internal/errors taxonomy.
package license
