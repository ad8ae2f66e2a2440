// Package client is the GophVault client's view of the remote record store.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Client interface): PreLogin,
//     Register, Login, Refresh, AllRecords, SyncSince, record insert/update/
//     delete and Ping.
//  2. A concrete gRPC implementation (see GRPCClient) that speaks the
//     api.VaultService with the JSON codec, attaches the access token as
//     metadata and maps gRPC status codes to the error taxonomy below.
//
// # Error Handling
//
// Callers match with errors.Is / errors.As:
//
//   - ErrNetwork: transport failure, retryable.
//   - ErrTokenExpired: the access token must be refreshed, then retry.
//   - ErrAuth: credentials or refresh token rejected; re-authenticate.
//   - *ApiError: any other server error, surfaced verbatim.
//
// # Concurrency & Contexts
//
// GRPCClient is safe for concurrent use. Every call honors the context;
// calls without a deadline get a default timeout.
package client
