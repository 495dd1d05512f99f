// Package main is execctl, a command-line client for the execbox server.
//
// Usage:
//
//	execctl run script.py
//	echo 'console.log(1)' | execctl run --lang js -
//	execctl languages
//
// run copies the program output to stdout as it arrives and prints the exit
// marker in color on stderr. The process exits with the remote exit code,
// or 1 when the program was killed or the stream was cut.
package main
