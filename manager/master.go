package manager

import "github.com/icrar/dfms/constants"

// NewMasterManager builds a Manager whose children are Island managers,
// matching MasterManager.__init__. Nodes() is empty for a Master: its
// leaf nodes sit behind its Islands, and nothing in this package asks the
// Islands for them or fills the list in.
func NewMasterManager(cfg Config) (*Manager, error) {
	return New(constants.MasterProfile, cfg)
}
