package sysinfo

import (
	"context"
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providerReturning(info *host.InfoStat, err error) *HostProvider {
	return &HostProvider{info: func(context.Context) (*host.InfoStat, error) { return info, err }}
}

func TestIdentifyUsesPlatformVersionAndKernelArch(t *testing.T) {
	p := providerReturning(&host.InfoStat{OS: "openbsd", PlatformVersion: "7.5", KernelVersion: "7.5", KernelArch: "amd64"}, nil)

	id, err := p.Identify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Identity{OS: "openbsd", Release: "7.5", Machine: "amd64"}, id)
}

func TestIdentifyFallsBackToKernelVersion(t *testing.T) {
	p := providerReturning(&host.InfoStat{OS: "openbsd", KernelVersion: "7.4", KernelArch: "arm64"}, nil)

	id, err := p.Identify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "7.4", id.Release)
}

func TestIdentifyErrors(t *testing.T) {
	_, err := providerReturning(nil, errors.New("sysctl failed")).Identify(context.Background())
	assert.ErrorContains(t, err, "sysctl failed")

	_, err = providerReturning(&host.InfoStat{KernelArch: "amd64"}, nil).Identify(context.Background())
	assert.Error(t, err)

	_, err = providerReturning(&host.InfoStat{PlatformVersion: "7.5"}, nil).Identify(context.Background())
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	id, err := Static{Release: "7.9", Machine: "amd64"}.Identify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "7.9", id.Release)
}
