package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	appversion "github.com/bernd-roth/GeoTracker/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print geotrackerctl build information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(appversion.Full("geotrackerctl"))
		},
	}
}
