package manager

import "github.com/icrar/dfms/constants"

// NewIslandManager builds a Manager whose children are Node managers,
// matching DataIslandManager.__init__. Unlike the Master tier, an
// Island's direct hosts and its leaf nodes are the same set: a Node
// manager is both the thing this tier dials and the thing drops are
// finally scheduled on.
func NewIslandManager(cfg Config) (*Manager, error) {
	m, err := New(constants.IslandProfile, cfg)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.nodes = append([]string(nil), m.hosts...)
	m.mu.Unlock()
	return m, nil
}
