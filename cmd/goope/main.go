// Package main provides the goope CLI, which evaluates a policy on one
// logged bandit dataset and prints the estimated policy values.
package main

import "os"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
