// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/config"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/constants"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/logger"
	"github.com/united-manufacturing-hub/united-manufacturing-hub/acm-core/pkg/version"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "acm-runtime",
		Short:        "Supervises automation composition instances across participants",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", constants.DefaultConfigPath, "path to the runtime configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the supervision runtime",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "validate-config",
		Short: "Load the configuration, apply environment overrides and validate it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger.Initialize()

			if _, err := config.LoadWithEnvOverrides(configPath, logger.For(logger.ComponentConfig)); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", configPath)

			return err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.GetAppVersion())
		},
	})

	return root
}
