// Package main provides the catalog CLI.
package main

import "os"

func main() {
	os.Exit(run(os.Args[1:]))
}
