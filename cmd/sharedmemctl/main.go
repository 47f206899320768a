// Command sharedmemctl is a small operator CLI over the controller's
// HTTP API: status/devices/approve/deny, grounded on the teacher pack's
// defilantech-LLMKube pkg/cli commands but talking to a plain HTTP
// controller instead of the Kubernetes API server.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var addr string

	root := &cobra.Command{
		Use:   "sharedmemctl",
		Short: "Operate a sharedmem controller over its HTTP API",
	}
	root.PersistentFlags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "controller base URL")

	root.AddCommand(newStatusCommand(&addr))
	root.AddCommand(newDevicesCommand(&addr))
	root.AddCommand(newApproveCommand(&addr))
	root.AddCommand(newDenyCommand(&addr))
	return root
}

func newStatusCommand(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cluster's process-supervisor status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(*addr + "/api/cluster/status")
		},
	}
}

func newDevicesCommand(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List every known device and its approval status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(*addr + "/api/devices")
		},
	}
}

func newApproveCommand(addr *string) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "approve DEVICE_ID",
		Short: "Approve a pending device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := fmt.Sprintf(`{"role_id":%q}`, role)
			return postAndPrint(*addr+"/api/devices/"+args[0]+"/approve", body)
		},
	}
	cmd.Flags().StringVar(&role, "role", "role-guest", "role id to assign on approval")
	return cmd
}

func newDenyCommand(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "deny DEVICE_ID",
		Short: "Deny a pending device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postAndPrint(*addr+"/api/devices/"+args[0]+"/deny", "")
		},
	}
}

func getAndPrint(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func postAndPrint(url, body string) error {
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("controller returned %s: %s", resp.Status, string(raw))
	}

	var pretty interface{}
	if err := json.Unmarshal(raw, &pretty); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	encoded, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(string(encoded))
	return nil
}
