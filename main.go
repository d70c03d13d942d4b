package main

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/digitalocean/refresher/cmd"
)

var (
	hash    string
	version string
)

func main() {
	viper.SetEnvPrefix("refresher")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// refresher is the base command.
	var refresher = &cobra.Command{
		Use:   "refresher",
		Short: "refresher keeps prometheus authenticated against streampipes",
	}

	refresher.AddCommand(cmd.Refresh())
	refresher.AddCommand(cmd.Version(hash, version))

	if err := refresher.Execute(); err != nil {
		log.Fatal(err)
	}
}
