package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tcc-gateway/internal/message"
	"tcc-gateway/internal/server"
	"tcc-gateway/internal/tcc"
)

var (
	sendAddr    string
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send TYPE [ARGUMENT] [VALUE]",
	Short: "Send one client message to a running gateway",
	Long: `Send a single 8-byte client message over TCP and print the response.

TYPE is one of check, command, get-parameter, set-parameter, get-timeout,
set-timeout. ARGUMENT is a command, parameter or timeout name (or its numeric
id); VALUE is a number.

Examples:
  tcc-gateway send check
  tcc-gateway send command YAW_POSITION 45
  tcc-gateway send get-parameter CASE_TEMPERATURE
  tcc-gateway send set-timeout STATES 100`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendAddr, "addr", "a", "127.0.0.1:5050", "Gateway TCP address")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 2*time.Second, "Request timeout")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	req, err := parseRequest(tcc.Default(), args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
	defer cancel()
	client, err := server.Dial(ctx, sendAddr, sendTimeout)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp)
	if !resp.Status {
		return fmt.Errorf("%s failed", req.Type)
	}
	return nil
}

// parseRequest builds a message from "TYPE [ARGUMENT] [VALUE]"
func parseRequest(reg *tcc.Registry, args []string) (message.Message, error) {
	name := strings.ToUpper(strings.ReplaceAll(args[0], "-", "_"))
	t, ok := message.ParseType(name)
	if !ok || t == message.TypeUndefined {
		return message.Undefined, fmt.Errorf("unknown message type %q", args[0])
	}
	req := message.Message{Type: t}
	if t == message.TypeCheck {
		return req, nil
	}

	if len(args) < 2 {
		return message.Undefined, fmt.Errorf("%s needs an argument", t)
	}
	arg, err := parseArgument(reg, t, args[1])
	if err != nil {
		return message.Undefined, err
	}
	req.Argument = arg

	if len(args) == 3 {
		v, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return message.Undefined, fmt.Errorf("invalid value %q: %w", args[2], err)
		}
		req.Value = message.Some(v)
	} else if t == message.TypeSetTimeout || t == message.TypeSetParameter {
		return message.Undefined, fmt.Errorf("%s needs a value", t)
	}
	return req, nil
}

func parseArgument(reg *tcc.Registry, t message.Type, raw string) (tcc.Identifier, error) {
	name := strings.ToUpper(raw)
	id, numErr := strconv.ParseUint(raw, 10, 16)

	switch t {
	case message.TypeCommand:
		if c, ok := tcc.ParseCommand(name); ok {
			return c, nil
		}
		if c, ok := reg.LookupCommand(uint16(id)); numErr == nil && ok {
			return c, nil
		}
	case message.TypeGetParameter, message.TypeSetParameter:
		if p, ok := tcc.ParseParameter(name); ok {
			return p, nil
		}
		if p, ok := reg.LookupParameter(uint16(id)); numErr == nil && ok {
			return p, nil
		}
	case message.TypeGetTimeout, message.TypeSetTimeout:
		if to, ok := tcc.ParseTimeout(name); ok {
			return to, nil
		}
		if to, ok := reg.LookupTimeout(uint16(id)); numErr == nil && ok {
			return to, nil
		}
	}
	return nil, fmt.Errorf("%w: %s argument %q", tcc.ErrUnknownIdentifier, t, raw)
}
