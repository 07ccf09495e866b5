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
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newLogsCommand() *cobra.Command {
	var (
		configPath string
		lines      int
		follow     bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		Long: `Print the tail of the daemon's log file.

Only a detached daemon writes this file; a foreground daemon logs to
its own stderr.`,
		Example: `  # Last 50 lines
  skillsctl logs

  # Follow new output
  skillsctl logs -f`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logPath := cfg.Daemon.LogFilePath()

			f, err := os.Open(logPath)
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("no log file at %s (has the daemon been started?)", logPath)
				}
				return fmt.Errorf("failed to open log file: %w", err)
			}
			defer func() { f.Close() }()

			offset, err := printTail(f, os.Stdout, lines)
			if err != nil {
				return err
			}
			if !follow {
				return nil
			}

			// Poll for appended output. fsnotify would also work here, but
			// a log tail does not need sub-second latency and polling
			// survives the file being rotated out from under us.
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case <-time.After(500 * time.Millisecond):
				}

				info, err := os.Stat(logPath)
				if err != nil {
					continue
				}
				if info.Size() < offset {
					// Truncated or rotated; reopen and start from the top.
					reopened, err := os.Open(logPath)
					if err != nil {
						continue
					}
					f.Close()
					f = reopened
					offset = 0
				}
				if info.Size() == offset {
					continue
				}
				if _, err := f.Seek(offset, io.SeekStart); err != nil {
					return err
				}
				n, err := io.Copy(os.Stdout, f)
				if err != nil {
					return err
				}
				offset += n
			}
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Config file path")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new output")

	return cmd
}

// printTail writes the last n lines of f to w and returns the file
// offset after the written portion.
func printTail(f *os.File, w io.Writer, n int) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()

	// Read backwards in chunks until enough newlines are seen.
	const chunk = 64 * 1024
	var (
		buf   []byte
		start = size
	)
	for start > 0 && bytes.Count(buf, []byte{'\n'}) <= n {
		readFrom := start - chunk
		if readFrom < 0 {
			readFrom = 0
		}
		piece := make([]byte, start-readFrom)
		if _, err := f.ReadAt(piece, readFrom); err != nil {
			return 0, err
		}
		buf = append(piece, buf...)
		start = readFrom
	}

	tail := buf
	if newlines := bytes.Count(buf, []byte{'\n'}); newlines > n {
		for i := 0; i < newlines-n; i++ {
			idx := bytes.IndexByte(tail, '\n')
			tail = tail[idx+1:]
		}
	}

	if _, err := w.Write(tail); err != nil {
		return 0, err
	}
	return size, nil
}
