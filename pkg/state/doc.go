// Package state holds the in-memory model of one deck, kept consistent
// with the device via notifications and query responses.
//
// The Model is the single source of truth queried by callers. All mutation
// is funneled through the Router (notification routing and response
// parsing) which lives in this package so that every mutator stays
// unexported: external code only reads snapshots.
//
// The model supports being marked wholesale-stale on disconnect. Callers
// reading a stale model must trigger a re-query before trusting clip or
// slot identifiers again.
package state
