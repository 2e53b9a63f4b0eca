// cmd/client is the CLI entry-point built with Cobra.
//
// Usage:
//
//	kvcli put mykey myvalue --ttl 60    --server localhost:7001
//	kvcli get mykey                     --server localhost:7001
//	kvcli delete mykey                  --server localhost:7001
//	kvcli exists mykey                  --server localhost:7001
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"distributed-kvcache/internal/client"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "kvcli",
		Short: "CLI client for the distributed cache",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"localhost:7000", "Cache node address (host:port)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"Request timeout")

	root.AddCommand(putCmd(), getCmd(), deleteCmd(), existsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// dial connects to the configured node; the caller closes.
func dial() (*client.Client, error) {
	return client.Dial(serverAddr, timeout)
}

// ─── put ──────────────────────────────────────────────────────────────────────

func putCmd() *cobra.Command {
	var ttl int
	cmd := &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Store a key-value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Put(context.Background(), args[0], args[1], ttl); err != nil {
				return err
			}
			fmt.Println("stored")
			return nil
		},
	}
	cmd.Flags().IntVar(&ttl, "ttl", 0, "Time-to-live in seconds (0 = no expiration)")
	return cmd
}

// ─── get ──────────────────────────────────────────────────────────────────────

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve a value by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			v, err := c.Get(context.Background(), args[0])
			if err == client.ErrNotFound {
				fmt.Printf("key %q not found\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		},
	}
}

// ─── delete ───────────────────────────────────────────────────────────────────

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Delete(context.Background(), args[0]); err != nil {
				if err == client.ErrNotFound {
					fmt.Printf("key %q not found\n", args[0])
					return nil
				}
				return err
			}
			fmt.Printf("deleted %q\n", args[0])
			return nil
		},
	}
}

// ─── exists ───────────────────────────────────────────────────────────────────

func existsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <key>",
		Short: "Check whether a key is present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			ok, err := c.Exists(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(ok)
			return nil
		},
	}
}
