// Package app holds what the cmd/indexer subcommands share: the Runner
// contract and the process wiring under app/indexer.
package app

// Runner is a long-running process started by a subcommand.
type Runner interface {
	Run() error
}
