// Package monitor serves the counters of a running engine over net/rpc, so
// that a second process can watch an engine that is playing.
package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"

	"github.com/vsariola/recall/engine"
)

type (
	// Source is anything that has engine counters; *engine.Engine is one.
	Source interface {
		Stats() engine.Stats
	}

	// StatsServer is the rpc receiver.
	StatsServer struct {
		source Source
	}

	Server struct {
		listener net.Listener
		log      *slog.Logger
	}

	Client struct {
		client *rpc.Client
	}
)

const serviceName = "StatsServer"

func (s *StatsServer) Stats(_ int, reply *engine.Stats) error {
	*reply = s.source.Stats()
	return nil
}

// Serve starts accepting connections on addr in the background. Use ":0" to
// get a free port; Addr tells which one was chosen.
func Serve(addr string, source Source, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	server := rpc.NewServer()
	if err := server.RegisterName(serviceName, &StatsServer{source: source}); err != nil {
		return nil, fmt.Errorf("rpc.Register failed: %w", err)
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("net.Listen failed: %w", err)
	}
	s := &Server{listener: l, log: log}
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					log.Error("monitor stopped", "err", err)
				}
				return
			}
			log.Debug("monitor client connected", "remote", conn.RemoteAddr())
			go server.ServeConn(conn)
		}
	}()
	log.Info("monitor listening", "addr", l.Addr())
	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops accepting new clients. Connected clients are served until they
// hang up.
func (s *Server) Close() error {
	return s.listener.Close()
}

func Dial(addr string) (*Client, error) {
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rpc.Dial failed: %w", err)
	}
	return &Client{client: c}, nil
}

func (c *Client) Stats() (engine.Stats, error) {
	var ret engine.Stats
	if err := c.client.Call(serviceName+".Stats", 0, &ret); err != nil {
		return engine.Stats{}, fmt.Errorf("%s.Stats failed: %w", serviceName, err)
	}
	return ret, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
