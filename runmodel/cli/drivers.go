package cli

/**
implements the command line entry for the drivers command
*/

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scootdev/ensemble/common/client"
	"github.com/scootdev/ensemble/driver"
	"github.com/scootdev/ensemble/driver/drivers"
)

type driversCmd struct {
	printAsJson bool
	out         io.Writer
}

func (c *driversCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "drivers",
		Short: "List driver kinds and the options each accepts",
		Args:  cobra.NoArgs,
	}
	r.Flags().BoolVar(&c.printAsJson, "json", false, "Print the list as JSON")
	return r
}

func (c *driversCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	out := c.out
	if out == nil {
		out = os.Stdout
	}
	kinds := []driver.Kind{driver.Local, driver.RemoteShell, driver.Cluster}
	if c.printAsJson {
		listing := make(map[string][]string, len(kinds))
		for _, k := range kinds {
			listing[k.String()] = drivers.OptionKeys[k]
		}
		return json.NewEncoder(out).Encode(listing)
	}
	for _, k := range kinds {
		fmt.Fprintf(out, "%-8s %s\n", k, strings.Join(drivers.OptionKeys[k], " "))
	}
	return nil
}
