//go:build !windows
// +build !windows

package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/NPRA/geofence-converter/adapter"
)

// interrupt blocks until the process is asked to terminate. SIGUSR1 requests
// an immediate cycle and SIGUSR2 dumps the cache to the log.
func interrupt(cancel <-chan struct{}, a *adapter.Adapter) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(c)
	for {
		select {
		case sig := <-c:
			switch sig {
			case syscall.SIGUSR1:
				a.Trigger()
				continue
			case syscall.SIGUSR2:
				a.LogCache()
				continue
			default:
				return fmt.Errorf("received signal %s", sig)
			}
		case <-cancel:
			return errors.New("canceled")
		}
	}
}
