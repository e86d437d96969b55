package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kindlyrobotics/htree/internal/client"
)

const defaultPort = 2636

func parsePort(args []string) (int, error) {
	if len(args) == 0 {
		return defaultPort, nil
	}
	return strconv.Atoi(args[0])
}

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <file> <server> [port]",
		Short: "Upload a file and verify the server's inclusion proof",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, server := args[0], args[1]
			port, err := parsePort(args[2:])
			if err != nil {
				return fmt.Errorf("invalid port: %w", err)
			}

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}

			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			rs, err := client.OpenRootStore(cwd)
			if err != nil {
				return err
			}
			key := client.ServerKey(server, port)
			prevRoot, err := rs.Get(key)
			if err != nil {
				return err
			}

			c := client.New(server, port)
			proof, newRoot, err := c.Push(cmd.Context(), prevRoot, data)
			if err != nil {
				return err
			}

			if err := rs.Set(key, newRoot); err != nil {
				return err
			}

			fmt.Printf("pushed at index %d, new root %s\n", proof.Nth(), newRoot)
			return nil
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <nth> <file> <server> [port]",
		Short: "Download and verify the nth pushed entry",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			nth, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index: %w", err)
			}
			file, server := args[1], args[2]
			port, err := parsePort(args[3:])
			if err != nil {
				return fmt.Errorf("invalid port: %w", err)
			}

			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			rs, err := client.OpenRootStore(cwd)
			if err != nil {
				return err
			}
			root, err := rs.Get(client.ServerKey(server, port))
			if err != nil {
				return err
			}
			if root == nil {
				return fmt.Errorf("no known root for %s: push something first", client.ServerKey(server, port))
			}

			c := client.New(server, port)
			data, err := c.Get(cmd.Context(), *root, nth)
			if err != nil {
				return err
			}

			if err := os.WriteFile(file, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", file, err)
			}
			fmt.Printf("verified and wrote %d bytes to %s\n", len(data), file)
			return nil
		},
	}
}

func newProofCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proof <nth> <file> <server> [port]",
		Short: "Fetch the inclusion proof for the nth pushed entry",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			nth, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index: %w", err)
			}
			file, server := args[1], args[2]
			port, err := parsePort(args[3:])
			if err != nil {
				return fmt.Errorf("invalid port: %w", err)
			}

			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			rs, err := client.OpenRootStore(cwd)
			if err != nil {
				return err
			}
			root, err := rs.Get(client.ServerKey(server, port))
			if err != nil {
				return err
			}
			if root == nil {
				return fmt.Errorf("no known root for %s: push something first", client.ServerKey(server, port))
			}

			c := client.New(server, port)
			proof, err := c.Proof(cmd.Context(), *root, nth)
			if err != nil {
				return err
			}

			b, err := json.MarshalIndent(proof, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(file, b, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", file, err)
			}
			fmt.Printf("wrote proof to %s\n", file)
			return nil
		},
	}
}
