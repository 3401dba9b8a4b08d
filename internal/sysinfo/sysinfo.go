// Package sysinfo reports the running release and machine architecture.
package sysinfo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// Identity is what the upgrade steps need to know about the running system.
type Identity struct {
	OS      string // e.g. "openbsd"
	Release string // uname -r, e.g. "7.5"
	Machine string // uname -m, e.g. "amd64"
}

// Provider supplies the system identity.
type Provider interface {
	Identify(ctx context.Context) (Identity, error)
}

// HostProvider reads the identity from the kernel via gopsutil.
type HostProvider struct {
	info func(ctx context.Context) (*host.InfoStat, error)
}

func NewHostProvider() *HostProvider {
	return &HostProvider{info: host.InfoWithContext}
}

func (p *HostProvider) Identify(ctx context.Context) (Identity, error) {
	info, err := p.info(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("read host info: %w", err)
	}

	id := Identity{
		OS:      strings.ToLower(info.OS),
		Release: strings.TrimSpace(info.PlatformVersion),
		Machine: strings.TrimSpace(info.KernelArch),
	}
	if id.Release == "" {
		id.Release = strings.TrimSpace(info.KernelVersion)
	}

	if id.Release == "" {
		return Identity{}, errors.New("host reported no release version")
	}
	if id.Machine == "" {
		return Identity{}, errors.New("host reported no machine architecture")
	}
	return id, nil
}

// Static is a Provider that always returns the same identity.
type Static Identity

func (s Static) Identify(context.Context) (Identity, error) {
	return Identity(s), nil
}
