// Package app wires the reduction service into an HTTP server and manages
// its lifecycle.
//
// # Initialization Flow
//
//	1. Load configuration from the YAML file and MOPROMA_* environment
//	2. Initialize logging and OpenTelemetry
//	3. Create the reduction service
//	4. Build the router and middleware chain
//	5. Serve until interrupted, then shut down within the shutdown timeout
package app
