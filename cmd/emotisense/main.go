// emotisense monitors a person's affective state from a camera and a
// microphone, falling back to generated signals when a sensor is missing.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
