/*
Copyright 2023 Avi Zimmerman <avi.zimmerman@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command clatd-coordinator operates a single 464XLAT CLAT instance
// from the command line, exercising the Start and Dump surface a
// long-lived connectivity service embeds.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HorizonUI/packages-modules-Connectivity/pkg/clat"
	"github.com/HorizonUI/packages-modules-Connectivity/pkg/context"
	"github.com/HorizonUI/packages-modules-Connectivity/pkg/logging"
	"github.com/HorizonUI/packages-modules-Connectivity/pkg/platform"
)

var logLevel string

func main() {
	root := &cobra.Command{
		Use:   "clatd-coordinator",
		Short: "Operate a 464XLAT CLAT instance",
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error, silent)")
	root.AddCommand(startCmd(), dumpCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func startCmd() *cobra.Command {
	var iface string
	var netID uint32
	var prefix string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a CLAT instance and print its chosen IPv6 address",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.SetupLogging(logLevel)
			ctx := context.WithLogger(context.Background(), log)

			pfx96, err := clat.ParseNAT64Prefix(prefix)
			if err != nil {
				return err
			}
			coord, err := clat.New(platform.NewDependencies())
			if err != nil {
				return fmt.Errorf("construct coordinator: %w", err)
			}
			v6, err := coord.Start(ctx, iface, netID, pfx96)
			if err != nil {
				return fmt.Errorf("start clat: %w", err)
			}
			fmt.Println(v6.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&iface, "iface", "", "uplink interface to translate over")
	cmd.Flags().Uint32Var(&netID, "net-id", 0, "network id used to compute the socket fwmark")
	cmd.Flags().StringVar(&prefix, "nat64-prefix", "", "NAT64 /96 prefix, e.g. 64:ff9b::/96")
	_ = cmd.MarkFlagRequired("iface")
	_ = cmd.MarkFlagRequired("nat64-prefix")
	return cmd
}

func dumpCmd() *cobra.Command {
	var raw string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the state of a running CLAT instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.SetupLogging(logLevel)
			_ = context.WithLogger(context.Background(), log)
			coord, err := clat.New(platform.NewDependencies())
			if err != nil {
				return fmt.Errorf("construct coordinator: %w", err)
			}
			if raw != "" {
				return coord.DumpRawMap(os.Stdout, clat.RawMapName(raw))
			}
			return coord.Dump(os.Stdout)
		},
	}
	cmd.Flags().StringVar(&raw, "raw", "", "dump a raw pinned map instead (egress4 or ingress6)")
	return cmd
}
