// Package supervisor keeps a composite manager's child agents alive:
// EnsureDM implements the probe/bootstrap/re-probe dance of
// CompositeManager.ensureDM, and Supervisor.Run is the 60-second
// background sweep of CompositeManager._checkDM, ported to a cancellable
// goroutine instead of a daemon thread plus threading.Event.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"github.com/icrar/dfms/dmerrors"
	"github.com/icrar/dfms/reachability"
	"github.com/icrar/dfms/sshboot"
)

// sweepInterval is the cadence of the background checker loop, matching
// _checkDM's self._dmCheckerEvt.wait(60).
const sweepInterval = 60 * time.Second

// Starter starts the sub-manager executable on host, used by EnsureDM
// when a probe finds nothing listening. Implementations wrap
// sshboot.Bootstrapper.Run with the composed command line.
type Starter func(ctx context.Context, host string) error

// Supervisor owns the reachability probe, the starter and the set of
// hosts it watches, and runs the periodic health sweep.
type Supervisor struct {
	Hosts       []string
	Port        int
	CheckTimeout time.Duration
	Prober      *reachability.Prober
	Start       Starter
	Logger      *logrus.Entry
	Clock       clock.Clock
}

// EnsureDM probes host:Port; if nothing answers it invokes Start and
// re-probes, raising dmerrors.AgentStartupError if the agent still isn't
// reachable afterwards. This is the direct port of
// CompositeManager.ensureDM.
func (s *Supervisor) EnsureDM(ctx context.Context, host string) error {
	logger := s.logger().WithField("host", host).WithField("port", s.Port)

	logger.Debug("checking sub-manager presence")
	open, err := s.Prober.PortIsOpen(ctx, host, s.Port, &s.CheckTimeout)
	if err != nil {
		return err
	}
	if open {
		logger.Debug("sub-manager already present")
		return nil
	}

	logger.Debug("sub-manager not present, starting it now")
	if err := s.Start(ctx, host); err != nil {
		return &dmerrors.AgentStartupError{Host: host, Port: s.Port, Err: err}
	}

	open, err = s.Prober.PortIsOpen(ctx, host, s.Port, &s.CheckTimeout)
	if err != nil {
		return err
	}
	if !open {
		return &dmerrors.AgentStartupError{Host: host, Port: s.Port}
	}
	logger.Info("sub-manager started successfully")
	return nil
}

// Run sweeps every host in s.Hosts once, then every sweepInterval
// thereafter, logging and swallowing per-host failures exactly as
// _checkDM does ("Couldn't ensure a DM for host %s, will try again
// later"). It returns when ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	clk := s.clock()
	for {
		for _, host := range s.Hosts {
			if ctx.Err() != nil {
				return
			}
			if err := s.EnsureDM(ctx, host); err != nil {
				s.logger().WithField("host", host).WithError(err).
					Warn("couldn't ensure a sub-manager for host, will try again later")
			}
		}

		select {
		case <-clk.After(sweepInterval):
		case <-ctx.Done():
			return
		}
	}
}

func (s *Supervisor) logger() *logrus.Entry {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func (s *Supervisor) clock() clock.Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return clock.WallClock
}

// CommandLine composes the sub-manager startup command, matching
// CompositeManager.subDMCommandLine's
// '{0} -i {1} -P {2} -d --host {3}' format.
func CommandLine(exec, shortID string, port int, host string) string {
	return fmt.Sprintf("%s -i %s -P %d -d --host %s", exec, shortID, port, host)
}
