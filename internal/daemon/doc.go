// Package daemon coordinates the long-running songify process.
//
// It wires configuration, the settings store, the native song service, the
// browser bridge, deferred persistence, and the request orchestrator into a
// single lifecycle with flock-based locking to prevent multiple instances.
//
// Keep orchestration logic here: lifecycle rules live in the lifecycle package
// and transport details in their own packages, while the daemon focuses on
// startup, shutdown, and high level coordination.
package daemon
