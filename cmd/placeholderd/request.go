package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cbus "github.com/next-trace/scg-placeholder-bus/contract/bus"
	"github.com/next-trace/scg-placeholder-bus/placeholder"
)

func newRequestCmd(a *app) *cobra.Command {
	var ticks int

	cmd := &cobra.Command{
		Use:   "request <id> [key=value ...]",
		Short: "Resolve one placeholder and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}

			b, cleanup, err := a.openBus()
			if err != nil {
				return err
			}
			defer cleanup()

			api := placeholder.New(b, a.logger, a.apiOptions()...)
			result := api.Request(cmd.Context(), args[0], params, cbus.Ticks(ticks))

			_, err = fmt.Fprintln(cmd.OutOrStdout(), result)

			return err
		},
	}

	cmd.Flags().IntVarP(&ticks, "ticks", "t", 0, "timeout in ticks (20 per second); 0 uses the configured default")

	return cmd
}

// parseParams reads key=value pairs. Values that parse as JSON keep their
// type, anything else is a string.
func parseParams(args []string) (placeholder.Params, error) {
	p := make(placeholder.Params, len(args))

	for _, arg := range args {
		k, raw, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("param %q: want key=value", arg)
		}

		var v placeholder.Value
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = placeholder.String(raw)
		}

		p[k] = v
	}

	return p, nil
}
