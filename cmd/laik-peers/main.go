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

// laik-peers resolves a headless Kubernetes service to its member pod IPs
// and prints a LAIK_CLUSTER_CONFIG-compatible static peer list, for
// elastic-resize-free deployments that fix the group membership up front
// instead of going through the p2p home-rendezvous protocol.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"sort"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/TobiasZehetmair/laik"
)

const maxWaitForHost = 10 * time.Second

var (
	headlessServiceName string
	portnum             int
	locationPrefix      string
)

func init() {
	flag.StringVar(&headlessServiceName, "s", "", "headless service name")
	flag.IntVar(&portnum, "p", 7777, "fixed port number")
	flag.StringVar(&locationPrefix, "location", "", "location prefix for each peer (suffixed with its rank)")
}

func main() {
	flag.Parse()
	if headlessServiceName == "" {
		flag.Usage()
		os.Exit(1)
	}

	start := time.Now()
	var ips []net.IP
	var err error
retry:
	ips, err = net.LookupIP(headlessServiceName)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound && time.Since(start) < maxWaitForHost {
			time.Sleep(250 * time.Millisecond)
			goto retry
		}
		fmt.Fprintf(os.Stderr, "net.LookupIP(%q): %s\n", headlessServiceName, err)
		os.Exit(1)
	}

	sort.Slice(ips, func(i, j int) bool {
		return bytes.Compare(ips[i], ips[j]) < 0
	})

	peers := make([]laik.StaticPeer, len(ips))
	for i, ip := range ips {
		loc := locationPrefix
		if loc != "" {
			loc = fmt.Sprintf("%s-%d", loc, i)
		}
		peers[i] = laik.StaticPeer{
			LID:      i,
			Location: loc,
			Host:     ip.String(),
			Port:     portnum,
		}
	}

	out, err := yaml.Marshal(peers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal peer list: %s\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(out)
}
