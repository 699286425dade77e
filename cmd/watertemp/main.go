// Command watertemp builds and refreshes the published water temperature
// dataset: the station index, per-station daily series and the air
// temperature lookups merged into them.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
