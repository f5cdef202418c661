// Package auth defines the authenticated principal model and its token
// verification paths.
//
// Three independent principal kinds exist: platform administrators (the
// super-admin control plane), organization users (admins and employees of a
// tenant) and legacy single-tenant users. Each kind has its own signing
// secret, issuer and session cookie, so a token minted for one path can
// never be replayed against another.
//
// Platform administrators are additionally subject to a login lockout
// policy backed by Redis counters.
package auth
