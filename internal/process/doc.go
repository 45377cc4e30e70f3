// Package process supervises the hardware-abstraction daemon when the core
// is configured to own it.
//
// A Supervisor starts the daemon in its own process group, logs its output
// line by line, restarts it with exponential backoff when it exits, and
// stops it with SIGTERM followed by SIGKILL after a grace period.
//
//	sup := process.New(process.Config{
//	    Name:   "hwr-daemon",
//	    Binary: "/usr/local/bin/hwrd",
//	    Args:   []string{"--broker", "tcp://localhost:1883"},
//	})
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package process
