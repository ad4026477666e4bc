// CLI client for the GeoTracker daemon.
package main

import "github.com/bernd-roth/GeoTracker/cmd/geotrackerctl/commands"

func main() {
	commands.Execute()
}
