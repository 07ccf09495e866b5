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

/*
Package lifecycle manages skillsd daemon process lifecycle operations.

This package provides PID file management with stale-entry recovery,
shutdown coordination, process spawning/validation, health checking,
and lifecycle event logging.

# PID File Management

PID files are security-sensitive as they control which process receives
shutdown signals. Creation probes the recorded process for liveness,
replaces stale files from dead processes, and writes atomically
(O_EXCL) so two daemons cannot both claim the same path:

	pidFile := lifecycle.NewPIDFile("/path/to/skillsd.pid")
	if err := pidFile.Create(); err != nil {
	    // errors.Is(err, lifecycle.ErrAlreadyRunning)
	}
	defer pidFile.Remove()

# Shutdown Coordination

A SignalHandler owns the process shutdown flag and the cleanup
callbacks tied to it. OS signals, the idle monitor, and the shutdown
endpoint all funnel into the same one-shot trigger:

	handler := lifecycle.NewSignalHandler(logger)
	handler.Register(cleanup)           // runs synchronously, in order
	handler.RegisterAsync(asyncCleanup) // runs concurrently
	handler.Notify(ctx)                 // SIGINT/SIGTERM -> TriggerShutdown
	handler.WaitForShutdown(ctx)

# Process Operations

Process validation ensures signals are sent only to skillsd daemons,
preventing accidental kills of unrelated processes holding a recycled
pid:

	pid, ok := pidFile.Read()
	if ok && lifecycle.IsSkillsdProcess(pid) {
	    lifecycle.GracefulShutdown(pid, 10*time.Second, false)
	}

# Health Checking

Health polling uses exponential backoff to wait for daemon startup:

	checker := lifecycle.NewHealthChecker("http://127.0.0.1:7077/v1/health")
	if err := checker.WaitUntilHealthy(ctx, 30*time.Second); err != nil {
	    // daemon failed to start
	}

# Process Spawning

Detached process spawning runs the daemon in background mode:

	spawner := lifecycle.NewSpawner()
	pid, err := spawner.SpawnDetached("/path/to/skillsd", args, logPath)

# Lifecycle Logging

Start/stop attempts are appended to a JSON-lines audit file:

	log := lifecycle.NewEventLog("/path/to/lifecycle.log")
	log.LogStart("1.0.0")
	log.LogStopSuccess(pid, elapsed)
*/
package lifecycle
