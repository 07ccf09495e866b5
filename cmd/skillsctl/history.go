// Copyright 2026 The skillsd Authors
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
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/skillsd/skillsd/internal/history"
)

func newHistoryCommand() *cobra.Command {
	var (
		configPath string
		plugin     string
		operation  string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent operations",
		Long:  `List recently executed plugin operations from the daemon's audit trail.`,
		Example: `  # Last 20 operations
  skillsctl history --limit 20

  # Only jira operations
  skillsctl history --plugin jira`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			query := url.Values{}
			if plugin != "" {
				query.Set("plugin", plugin)
			}
			if operation != "" {
				query.Set("operation", operation)
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			path := "/v1/history"
			if encoded := query.Encode(); encoded != "" {
				path += "?" + encoded
			}

			var resp struct {
				Records []*history.Record `json:"records"`
				Count   int               `json:"count"`
			}
			if err := newAPIClient(cfg).get(cmd.Context(), path, &resp); err != nil {
				return err
			}

			if resp.Count == 0 {
				fmt.Println("No operations recorded")
				return nil
			}
			for _, rec := range resp.Records {
				outcome := "ok"
				if !rec.Success {
					outcome = "failed: " + rec.Error
				}
				fmt.Printf("%s  %s.%s  %dms  %s\n",
					rec.Time.Local().Format("2006-01-02 15:04:05"),
					rec.Plugin, rec.Operation, rec.DurationMS, outcome)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Config file path")
	cmd.Flags().StringVar(&plugin, "plugin", "", "Filter by plugin name")
	cmd.Flags().StringVar(&operation, "operation", "", "Filter by operation name")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum records to return")

	return cmd
}
