// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package laik

import (
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/TobiasZehetmair/laik/backend"
	"github.com/TobiasZehetmair/laik/backend/collective"
	"github.com/TobiasZehetmair/laik/backend/p2p"
	"github.com/TobiasZehetmair/laik/part"
)

// Option configures an Instance at Init time.
type Option func(*instConfig)

type instConfig struct {
	logger *log.Logger
}

func newInstConfig(opts []Option) *instConfig {
	c := &instConfig{logger: defaultLogger()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// An Instance is this process's membership in one cooperating group: its
// Group, the backend driving data movement, and the containers it has
// allocated. Exactly one Instance may be initialized per process;
// calling Init again before Finalize is a LogicError.
type Instance struct {
	group   *part.Group
	backend backend.Backend
	cfg     *instConfig

	mu         sync.Mutex
	containers []*Container
}

var (
	globalMu   sync.Mutex
	globalInst *Instance
)

// Init bootstraps this process into a group using the point-to-point
// backend's home-rendezvous protocol, blocks for LAIK_DEBUG_RANK if
// configured, and installs the result as the process singleton. Calling
// Init twice without an intervening Finalize is a LogicError.
func Init(cfg *Config, opts ...Option) (*Instance, error) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalInst != nil {
		return nil, logicErrorf("laik: Init called while an Instance is already active")
	}

	instCfg := newInstConfig(opts)
	p2p.SetLogf(instCfg.logger.Printf)

	p2pCfg := p2p.Config{HomeHost: cfg.HomeHost, HomePort: cfg.HomePort, Location: cfg.location(), Size: cfg.Size, ClusterKey: cfg.ClusterKey}
	b, err := p2p.Run(p2pCfg)
	if err != nil {
		return nil, err
	}
	loop := p2p.NewLoop(p2pCfg, b)
	loop.AwaitRoster(cfg.Size)
	group, err := part.NewGroup(b.MyLID, b.Table.LIDs())
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		group:   group,
		backend: p2p.New(loop),
		cfg:     instCfg,
	}
	if cfg.DebugRank == b.MyLID {
		inst.cfg.logger.Printf("laik: rank %d pausing for debugger attach (LAIK_DEBUG_RANK)", b.MyLID)
		pauseForDebugger()
	}
	if err := inst.backend.UpdateGroup(group); err != nil {
		return nil, err
	}
	globalInst = inst
	return inst, nil
}

// InitCollective bootstraps an Instance over an already-formed group using
// the collective backend instead of point-to-point bootstrap, for
// environments where group membership and a communicator are supplied
// externally (an MPI launcher, a test harness).
func InitCollective(group *part.Group, tr collective.Transport, opts ...Option) (*Instance, error) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalInst != nil {
		return nil, logicErrorf("laik: Init called while an Instance is already active")
	}
	b := collective.New(tr)
	if err := b.UpdateGroup(group); err != nil {
		return nil, err
	}
	inst := &Instance{group: group, backend: b, cfg: newInstConfig(opts)}
	globalInst = inst
	return inst, nil
}

// pauseForDebugger blocks until SIGCONT, matching the common MPI-world
// pattern of pausing exactly one rank for attach-and-inspect debugging.
func pauseForDebugger() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGCONT)
	defer signal.Stop(ch)
	<-ch
}

// Group returns this Instance's current membership.
func (in *Instance) Group() *part.Group { return in.group }

// Finalize releases the backend and clears the process singleton.
func (in *Instance) Finalize() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	err := in.backend.Finalize()
	if globalInst == in {
		globalInst = nil
	}
	return err
}
