// Package main provides the sentinel CLI application.
package main

import "github.com/openepi/sentinel/cmd"

func main() {
	cmd.Execute()
}
