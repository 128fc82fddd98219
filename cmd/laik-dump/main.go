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

// laik-dump connects to a running process's point-to-point listen port
// and prints its peer table or verb help, using the same status/help
// verbs any peer can send.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"time"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7777", "host:port of the process to query")
	help := flag.Bool("help-verbs", false, "print the verb table instead of peer status")
	timeout := flag.Duration("timeout", 5*time.Second, "dial and read timeout")
	flag.Parse()

	conn, err := net.DialTimeout("tcp", *addr, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %s\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(*timeout))

	cmd := "status\n"
	if *help {
		cmd = "help\n"
	}
	if _, err := conn.Write([]byte(cmd)); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %s\n", *addr, err)
		os.Exit(1)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > 0 && line[0] == '#' {
			fmt.Println(line[1:])
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %s\n", *addr, err)
		os.Exit(1)
	}
}
