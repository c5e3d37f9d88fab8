// Command listeria-report serves the listeria monitoring dashboard and
// manages its database.
package main

import "os"

func main() {
	if err := RootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
