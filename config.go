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
	"os"
	"strconv"

	"sigs.k8s.io/yaml"
)

// Config is the environment-driven bootstrap configuration for an
// Instance.
type Config struct {
	HomeHost   string
	HomePort   int
	Location   string
	Size       int
	DebugRank  int // -1 means no rank pauses for debugger attach
	ClusterKey string

	// StaticPeers, if non-empty, is a fixed peer list decoded from a YAML
	// cluster-config file, used in non-bootstrapped elastic scenarios
	// where there is no home rendezvous at all.
	StaticPeers []StaticPeer
}

// location returns the configured location string, defaulting to this
// host's hostname when none is set.
func (c *Config) location() string {
	if c.Location != "" {
		return c.Location
	}
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// StaticPeer is one entry of a YAML cluster-config file.
type StaticPeer struct {
	LID      int    `json:"lid"`
	Location string `json:"location"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// ConfigFromEnv reads LAIK_HOME_HOST, LAIK_HOME_PORT, LAIK_SIZE,
// LAIK_DEBUG_RANK, LAIK_CLUSTER_KEY and, if set, decodes the file at
// LAIK_CLUSTER_CONFIG as a static peer list.
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{
		HomeHost:   os.Getenv("LAIK_HOME_HOST"),
		HomePort:   7777,
		Location:   os.Getenv("LAIK_LOCATION"),
		DebugRank:  -1,
		ClusterKey: os.Getenv("LAIK_CLUSTER_KEY"),
	}
	if cfg.HomeHost == "" {
		return nil, configErrorf("LAIK_HOME_HOST is required")
	}
	if v := os.Getenv("LAIK_HOME_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, configErrorf("LAIK_HOME_PORT: %v", err)
		}
		cfg.HomePort = p
	}
	sizeStr := os.Getenv("LAIK_SIZE")
	if sizeStr == "" {
		return nil, configErrorf("LAIK_SIZE is required")
	}
	n, err := strconv.Atoi(sizeStr)
	if err != nil {
		return nil, configErrorf("LAIK_SIZE: %v", err)
	}
	if n < 1 {
		return nil, configErrorf("LAIK_SIZE must be >= 1, got %d", n)
	}
	cfg.Size = n
	if v := os.Getenv("LAIK_DEBUG_RANK"); v != "" {
		r, err := strconv.Atoi(v)
		if err != nil {
			return nil, configErrorf("LAIK_DEBUG_RANK: %v", err)
		}
		cfg.DebugRank = r
	}
	if path := os.Getenv("LAIK_CLUSTER_CONFIG"); path != "" {
		peers, err := loadStaticPeers(path)
		if err != nil {
			return nil, err
		}
		cfg.StaticPeers = peers
	}
	return cfg, nil
}

func loadStaticPeers(path string) ([]StaticPeer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapConfigErr(err, "read cluster config %s", path)
	}
	var peers []StaticPeer
	if err := yaml.Unmarshal(raw, &peers); err != nil {
		return nil, wrapConfigErr(err, "decode cluster config %s", path)
	}
	return peers, nil
}
