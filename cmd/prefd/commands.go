package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prefd/prefd/internal/config"
)

// parseValueArg interprets a CLI value argument: JSON when it parses,
// a plain string otherwise. "null" therefore deletes the key.
func parseValueArg(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func formatValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// --- get ---

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/settings/"+url.PathEscape(key))
		if err != nil {
			return err
		}

		var result struct {
			Key     string `json:"key"`
			Present bool   `json:"present"`
			Value   any    `json:"value"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if !result.Present {
			fmt.Println("(absent)")
			return nil
		}
		fmt.Println(formatValue(result.Value))
		return nil
	},
}

// --- set ---

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a setting",
	Long: `Write a setting. The value is parsed as JSON when possible,
otherwise stored as a string. Setting a key to null removes it.

Examples:
  prefd set theme dark
  prefd set font.size 14
  prefd set notifications '{"sound": true, "badge": false}'
  prefd set theme null`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, raw := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"value": parseValueArg(raw)}
		resp, err := client.put(cmd.Context(), "/settings/"+url.PathEscape(key), body)
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if body["value"] == nil {
			successf("Deleted %s", key)
		} else {
			successf("Set %s = %s", key, raw)
		}
		return nil
	},
}

// --- delete ---

var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/settings/"+url.PathEscape(key))
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		successf("Deleted %s", key)
		return nil
	},
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/settings")
		if err != nil {
			return err
		}

		var values map[string]any
		if err := decodeJSON(resp, &values); err != nil {
			return err
		}

		if len(values) == 0 {
			fmt.Println("No settings stored.")
			return nil
		}

		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			settingLine(k, formatValue(values[k]))
		}
		return nil
	},
}

// --- constants ---

var constantsCmd = &cobra.Command{
	Use:   "constants",
	Short: "Show the settings snapshot captured at server start",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/constants")
		if err != nil {
			return err
		}

		var constants map[string]any
		if err := decodeJSON(resp, &constants); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(constants)
	},
}

// --- watch ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream settings-change events",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.stream(cmd.Context(), "/events")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		notef("watching for changes (ctrl-c to stop)")
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			var ev struct {
				Key     string `json:"key"`
				Value   any    `json:"value"`
				Deleted bool   `json:"deleted"`
			}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				continue
			}

			eventLine(ev.Key, formatValue(ev.Value), ev.Deleted)
		}
		return scanner.Err()
	},
}

// --- invoke ---

var invokeCmd = &cobra.Command{
	Use:   "invoke <module> <op> [args-json]",
	Short: "Invoke a bridge module operation by name",
	Long: `Invoke a bridge module operation by name, the way a host dispatcher
would.

Examples:
  prefd invoke settings getValue '{"key": "theme"}'
  prefd invoke settings getConstants`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		module, op := args[0], args[1]

		var opArgs map[string]any
		if len(args) == 3 {
			if err := json.Unmarshal([]byte(args[2]), &opArgs); err != nil {
				return fmt.Errorf("invalid args JSON: %w", err)
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"module": module, "op": op, "args": opArgs}
		resp, err := client.post(cmd.Context(), "/invoke", body)
		if err != nil {
			return err
		}

		var result struct {
			Result any `json:"result"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result.Result)
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update daemon configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			settingLine(k.Key, k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		successf("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
