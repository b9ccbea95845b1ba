package xpacket

import (
	"fmt"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// minEtherFrameLen is the minimum Ethernet frame length without FCS.
const minEtherFrameLen = 60

// SerializeLayers encodes the given layers into wire bytes, fixing lengths
// and computing checksums.
func SerializeLayers(lyrs ...gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}

	if err := gopacket.SerializeLayers(buf, opts, lyrs...); err != nil {
		return nil, fmt.Errorf("failed to serialize layers: %w", err)
	}

	return buf.Bytes(), nil
}

// ParseEtherPacket decodes raw bytes as an Ethernet frame.
//
// The input is never modified: short frames are padded on a copy.
func ParseEtherPacket(data []byte) gopacket.Packet {
	// Pad the packet with zero bytes to align its size at 60 bytes
	// https://github.com/google/gopacket/issues/361
	// github.com/gopacket/gopacket@v1.3.1/layers/ethernet.go#L95
	if len(data) < minEtherFrameLen {
		padded := make([]byte, minEtherFrameLen)
		copy(padded, data)
		data = padded
	}

	return gopacket.NewPacket(
		data,
		layers.LayerTypeEthernet,
		gopacket.Default,
	)
}
