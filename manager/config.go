package manager

import (
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/icrar/dfms/client"
	"github.com/icrar/dfms/sshboot"
)

// Config encapsulates the configuration options shared by every composite
// manager tier, validated the way Chapter12/dbspgraph's
// MasterConfig/WorkerConfig are: a Validate() that accumulates failures
// via multierror.Append and defaults a null logger.
type Config struct {
	// Hosts is the initial set of children this manager is responsible
	// for (Island hosts for a Master, Node hosts for an Island).
	Hosts []string

	// PrivateKeyPath is the SSH key used to bootstrap children. Empty
	// means sshboot.Bootstrapper falls back to ~/.ssh/id_rsa.
	PrivateKeyPath string

	// SSHUser authenticates the bootstrap connection.
	SSHUser string

	// CheckTimeout bounds how long EnsureDM waits for a single probe
	// attempt before giving up on a host, mirroring dmCheckTimeout.
	CheckTimeout int

	// Dial opens a connection to a child agent. Defaults to client.Dial.
	Dial client.Dialer

	// Logger receives structured operational logs. A discarding logger
	// is used when absent.
	Logger *logrus.Entry
}

// Validate checks the config and fills in defaults, matching the
// MasterConfig/WorkerConfig.Validate() pattern.
func (cfg *Config) Validate() error {
	var err error
	if cfg.SSHUser == "" {
		err = multierror.Append(err, xerrors.Errorf("ssh user not specified"))
	}
	if cfg.Dial == nil {
		cfg.Dial = client.Dial
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}
	return err
}

// bootstrapper builds the sshboot.Bootstrapper this config describes.
func (cfg *Config) bootstrapper() *sshboot.Bootstrapper {
	return &sshboot.Bootstrapper{User: cfg.SSHUser, KeyPath: cfg.PrivateKeyPath}
}
