// gram-echo-client opens a connection to a gram-echo-server, sends a
// batch of numbered messages, waits for the echoes, and reports the
// connection metrics.
//
// Usage:
//
//	gram-echo-client -server 127.0.0.1:7600 -count 10 -reliable
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pterm/pterm"

	"github.com/gramnet/gram/pkg/socket"
	"github.com/gramnet/gram/pkg/transport"
)

func main() {
	server := flag.String("server", "127.0.0.1:7600", "server address")
	pid := flag.Uint64("pid", 0x6772616d, "protocol id")
	count := flag.Int("count", 10, "messages to send")
	reliable := flag.Bool("reliable", true, "send with reliable delivery")
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline")
	flag.Parse()

	addr, err := net.ResolveUDPAddr("udp", *server)
	if err != nil {
		pterm.DefaultLogger.Error("bad server address: " + err.Error())
		os.Exit(1)
	}

	io, err := transport.NewUDP(transport.UDPConfig{})
	if err != nil {
		pterm.DefaultLogger.Error("bind failed: " + err.Error())
		os.Exit(1)
	}
	defer io.Close()

	config := socket.DefaultConfig()
	config.ProtocolID = *pid

	sock, err := socket.New(io, config)
	if err != nil {
		pterm.DefaultLogger.Error("socket: " + err.Error())
		os.Exit(1)
	}

	handle, err := sock.Open(time.Now(), addr)
	if err != nil {
		pterm.DefaultLogger.Error("open: " + err.Error())
		os.Exit(1)
	}
	pterm.DefaultLogger.Info("connecting to " + addr.String())

	deadline := time.Now().Add(*timeout)
	connected := false
	echoes := 0

	for time.Now().Before(deadline) {
		for _, ev := range sock.Poll(time.Now()) {
			switch ev.Kind {
			case socket.EventConnected:
				connected = true
				pterm.DefaultLogger.Info("connected, sending messages")
				for i := 0; i < *count; i++ {
					msg := []byte(fmt.Sprintf("message %03d", i))
					if err := sock.Send(ev.Handle, msg, *reliable); err != nil {
						pterm.DefaultLogger.Error("send: " + err.Error())
						os.Exit(1)
					}
				}

			case socket.EventMessage:
				echoes++
				pterm.DefaultLogger.Debug("echo: " + string(ev.Data))

			case socket.EventDisconnected:
				pterm.DefaultLogger.Warn("disconnected: " + ev.Reason.String())
				os.Exit(1)
			}
		}

		if connected && echoes >= *count {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if echoes < *count {
		pterm.DefaultLogger.Error(fmt.Sprintf("timed out with %d of %d echoes", echoes, *count))
		os.Exit(1)
	}

	if m, err := sock.Metrics(handle); err == nil {
		rtt := "n/a"
		if m.HasRTT {
			rtt = m.RTT.String()
		}
		pterm.DefaultLogger.Info(fmt.Sprintf(
			"done: %d echoes, %d packets / %d bytes sent, rtt %s",
			echoes, m.SentPackets, m.SentBytes, rtt))
	}

	// Courtesy disconnect, then give the flush a moment.
	sock.Close(handle)
	for i := 0; i < 10; i++ {
		sock.Poll(time.Now())
		time.Sleep(5 * time.Millisecond)
	}
}
