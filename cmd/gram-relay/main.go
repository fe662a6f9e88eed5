// gram-relay is a lossy UDP relay for soak-testing gram endpoints over a
// deliberately bad link. It forwards datagrams between a client and one
// fixed target, dropping them at a configurable rate and delaying them by a
// configurable amount.
//
// Point a client at the relay's listen address; the relay forwards its
// traffic to -target and routes replies back to the most recent client
// address.
//
// Usage:
//
//	gram-relay -listen :7700 -target 127.0.0.1:7600 -drop 0.3 -delay 20ms
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/pterm/pterm"
)

func main() {
	listen := flag.String("listen", ":7700", "UDP listen address")
	target := flag.String("target", "127.0.0.1:7600", "forward destination")
	drop := flag.Float64("drop", 0.3, "drop probability (0.0 - 1.0)")
	delay := flag.Duration("delay", 0, "extra per-datagram delay")
	flag.Parse()

	targetAddr, err := net.ResolveUDPAddr("udp", *target)
	if err != nil {
		pterm.DefaultLogger.Error("bad target address: " + err.Error())
		os.Exit(1)
	}

	conn, err := net.ListenPacket("udp", *listen)
	if err != nil {
		pterm.DefaultLogger.Error("listen failed: " + err.Error())
		os.Exit(1)
	}
	defer conn.Close()

	pterm.DefaultLogger.Info(fmt.Sprintf(
		"relaying %s <-> %s with %.0f%% drop, %s delay",
		conn.LocalAddr(), targetAddr, *drop*100, *delay))

	var clientAddr net.Addr
	buf := make([]byte, 65535)
	forwarded, dropped := 0, 0

	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			pterm.DefaultLogger.Error("read: " + err.Error())
			return
		}

		var dst net.Addr
		if from.String() == targetAddr.String() {
			// Reply path: back to the last seen client.
			if clientAddr == nil {
				continue
			}
			dst = clientAddr
		} else {
			clientAddr = from
			dst = targetAddr
		}

		if rand.Float64() < *drop {
			dropped++
			if dropped%100 == 1 {
				pterm.DefaultLogger.Debug(fmt.Sprintf("dropped %d, forwarded %d", dropped, forwarded))
			}
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		if *delay > 0 {
			go func(p []byte, d net.Addr) {
				time.Sleep(*delay)
				conn.WriteTo(p, d)
			}(payload, dst)
		} else {
			conn.WriteTo(payload, dst)
		}
		forwarded++
	}
}
