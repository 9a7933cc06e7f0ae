package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/OpenTraceLab/OpenTraceKNX/internal/config"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/knx"
)

// session is an open connection to the target device.
type session struct {
	bus knx.Bus
	dev knx.Device
}

// openSession dials the configured interface, checks that the target answers
// and opens it.
func openSession(ctx context.Context, cfg *config.Config, log *slog.Logger) (*session, error) {
	addr, err := cfg.Address()
	if err != nil {
		return nil, err
	}
	params, err := cfg.ConnectorParameters()
	if err != nil {
		return nil, err
	}

	bus, err := knx.Dial(params)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", params, err)
	}
	log.Debug("connecting", "connection", params.String())
	if err := bus.Connect(ctx); err != nil {
		bus.Close()
		return nil, fmt.Errorf("connect %s: %w", params, err)
	}

	ok, err := bus.Ping(ctx, addr)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("ping %s: %w", addr, err)
	}
	if !ok {
		bus.Close()
		return nil, fmt.Errorf("%w: %s", knx.ErrUnreachable, addr)
	}

	dev, err := bus.OpenDevice(ctx, addr)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("open %s: %w", addr, err)
	}
	log.Info("device connected", "target", addr.String())
	return &session{bus: bus, dev: dev}, nil
}

func (s *session) Close() error {
	derr := s.dev.Close()
	if err := s.bus.Close(); err != nil {
		return err
	}
	return derr
}
