package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/mosaicnetworks/indexnode/src/node"
	"github.com/spf13/cobra"
)

var statusAddr string

// NewStatusCmd produces a command printing the status of a running node
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running node",
		RunE:  status,
	}

	cmd.Flags().StringVarP(&statusAddr, "service", "s", _config.ServiceAddr, "IP:Port of the node's HTTP service")

	return cmd
}

func status(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	var st node.Status
	if err := getJSON(client, "/status", &st); err != nil {
		return err
	}

	var stats map[string]string
	if err := getJSON(client, "/stats", &stats); err != nil {
		return err
	}

	stateColor := color.New(color.FgYellow)
	switch st.State {
	case "STARTED":
		stateColor = color.New(color.FgGreen)
	case "NOT_CAPABLE":
		stateColor = color.New(color.FgRed)
	}

	fmt.Printf("%s %s\n", color.CyanString("state:   "), stateColor.Sprint(st.State))
	fmt.Printf("%s %s\n", color.CyanString("mode:    "), st.Mode)
	fmt.Printf("%s %s\n", color.CyanString("status:  "), st.Status)
	if st.Identity != "" {
		fmt.Printf("%s %s\n", color.CyanString("identity:"), st.Identity)
		fmt.Printf("%s %s\n", color.CyanString("addr:    "), st.Addr)
	}
	fmt.Printf("%s %s\n", color.CyanString("sync:    "), st.Sync)

	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println()
	for _, k := range keys {
		fmt.Printf("%s %s\n", color.WhiteString("%-16s", k), stats[k])
	}

	return nil
}

func getJSON(client *http.Client, path string, v interface{}) error {
	resp, err := client.Get("http://" + statusAddr + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", path, resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
