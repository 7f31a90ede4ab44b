// Command tabular ingests spreadsheet files into a SQLite-backed
// dataset store and queries them, either one-shot from the command line
// or as an HTTP service.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
