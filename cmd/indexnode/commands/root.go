package commands

import (
	"github.com/mosaicnetworks/indexnode/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for the indexnode
var RootCmd = &cobra.Command{
	Use:              "indexnode",
	Short:            "indexnode membership and liveness",
	TraverseChildren: true,
}
