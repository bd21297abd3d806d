// Package cli provides the shared plumbing for the lingopod command line
// tool: context-based configuration under ~/.lingopod, request file
// loading (YAML or JSON), output formatting, and the terminal UI frame
// used by the live session monitor.
//
// Configuration follows the kubectl context model: named contexts hold
// API credentials and endpoint overrides, and one of them is current.
package cli
