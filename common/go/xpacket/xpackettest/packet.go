// Package xpackettest provides packet helpers for tests.
package xpackettest

import (
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/sdnctl/common/go/xpacket"
)

// LayersToPacket serializes layers into a parsed Ethernet packet, failing the
// test on any error.
func LayersToPacket(t *testing.T, lyrs ...gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()

	data, err := xpacket.SerializeLayers(lyrs...)
	require.NoError(t, err)

	pkt := gopacket.NewPacket(
		data,
		layers.LayerTypeEthernet,
		gopacket.Default,
	)
	require.Empty(t, pkt.ErrorLayer(), "%#+v", lyrs)
	return pkt
}
