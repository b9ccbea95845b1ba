package xpacket

import (
	"testing"

	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEtherPacket_PadsShortFrames(t *testing.T) {
	data := make([]byte, 14)
	data[12], data[13] = 0x88, 0xcc

	pkt := ParseEtherPacket(data)

	assert.Len(t, data, 14, "input must not be modified")
	assert.Len(t, pkt.Data(), minEtherFrameLen)
	eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	require.True(t, ok)
	assert.Equal(t, layers.EthernetTypeLinkLayerDiscovery, eth.EthernetType)
}

func TestSerializeLayers_FixesLengths(t *testing.T) {
	data, err := SerializeLayers(
		&layers.Ethernet{EthernetType: layers.EthernetTypeIPv4},
		&layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolICMPv4,
			SrcIP: []byte{10, 0, 0, 1}, DstIP: []byte{10, 0, 0, 2}},
		&layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)},
	)
	require.NoError(t, err)

	pkt := ParseEtherPacket(data)
	require.Nil(t, pkt.ErrorLayer())
	ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.True(t, ok)
	assert.Equal(t, uint16(28), ip.Length)
}
