// gram-echo-server is a demo endpoint that accepts every connection and
// echoes each message back. Echoes are sent reliably unless -reliable=false;
// the class an inbound message arrived with is not consulted.
//
// Usage:
//
//	gram-echo-server -listen :7600 -pid 0x6772616d
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"

	"github.com/gramnet/gram/pkg/socket"
	"github.com/gramnet/gram/pkg/transport"
)

func main() {
	listen := flag.String("listen", ":7600", "UDP listen address")
	pid := flag.Uint64("pid", 0x6772616d, "protocol id")
	reliable := flag.Bool("reliable", true, "echo with reliable delivery")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		pterm.DefaultLogger.Level = pterm.LogLevelDebug
	}

	io, err := transport.NewUDP(transport.UDPConfig{ListenAddr: *listen})
	if err != nil {
		pterm.DefaultLogger.Error("listen failed: " + err.Error())
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

	pterm.DefaultLogger.Info("echo server listening on " + io.LocalAddr().String())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			pterm.DefaultLogger.Info("shutting down")
			return
		case <-ticker.C:
		}

		for _, ev := range sock.Poll(time.Now()) {
			switch ev.Kind {
			case socket.EventConnected:
				pterm.DefaultLogger.Info("peer connected: " + ev.Addr.String())
			case socket.EventMessage:
				pterm.DefaultLogger.Debug("echoing " + fmt.Sprintf("%d bytes to %s", len(ev.Data), ev.Addr))
				if err := sock.Send(ev.Handle, ev.Data, *reliable); err != nil {
					pterm.DefaultLogger.Warn("echo failed: " + err.Error())
				}
			case socket.EventDisconnected:
				pterm.DefaultLogger.Info(fmt.Sprintf("peer %s disconnected: %s", ev.Addr, ev.Reason))
			}
		}
	}
}
