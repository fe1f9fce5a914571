// Package client contains the scanner's transport and local database
// bootstrap.
//
// GRPCClient talks to the verifier service over gRPC. Every call carries
// the device credential and, when configured, a device identifier. gRPC
// status codes are mapped to sentinel errors so callers can tell an
// unreachable server (ErrUnavailable) from a rejected credential
// (ErrUnauthorized) with errors.Is.
//
// InitDatabase opens the scanner's SQLite file and applies the embedded
// goose migrations.
package client
