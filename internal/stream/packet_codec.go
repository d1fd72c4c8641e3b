package stream

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/arianpg/mikaboshi/internal/model"
)

const (
	CodecProto = "proto"
	CodecJSON  = "json"
)

// Field numbers of packet.Packet as served by the relay's AgentService.
const (
	packetFieldType       protowire.Number = 1
	packetFieldSrcIP      protowire.Number = 2
	packetFieldDstIP      protowire.Number = 3
	packetFieldSrcIsAgent protowire.Number = 4
	packetFieldDstIsAgent protowire.Number = 5
	packetFieldSize       protowire.Number = 6
	packetFieldProto      protowire.Number = 7
	packetFieldSrcPort    protowire.Number = 8
	packetFieldDstPort    protowire.Number = 9
)

// packetCodec speaks the relay's protobuf messages: packet.Empty as the
// subscribe request and packet.Packet for every streamed event. It is passed
// per call with grpc.ForceCodec and never registered, so the process-wide
// "proto" codec stays untouched.
type packetCodec struct{}

func (packetCodec) Name() string {
	return CodecProto
}

func (packetCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *model.SubscribeRequest:
		return []byte{}, nil
	case *model.TrafficEvent:
		return appendPacket(nil, m), nil
	default:
		return nil, fmt.Errorf("packet codec: cannot marshal %T", v)
	}
}

func (packetCodec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *model.SubscribeRequest:
		return skipFields(data)
	case *model.TrafficEvent:
		ev, err := consumePacket(data)
		if err != nil {
			return err
		}
		*m = ev
		return nil
	default:
		return fmt.Errorf("packet codec: cannot unmarshal into %T", v)
	}
}

// proto3 omits zero values on the wire.
func appendPacket(b []byte, ev *model.TrafficEvent) []byte {
	b = appendString(b, packetFieldType, ev.Type)
	b = appendString(b, packetFieldSrcIP, ev.SrcIP)
	b = appendString(b, packetFieldDstIP, ev.DstIP)
	b = appendBool(b, packetFieldSrcIsAgent, ev.SrcIsAgent)
	b = appendBool(b, packetFieldDstIsAgent, ev.DstIsAgent)
	b = appendInt32(b, packetFieldSize, ev.Size)
	b = appendString(b, packetFieldProto, ev.Proto)
	b = appendInt32(b, packetFieldSrcPort, int64(ev.SrcPort))
	b = appendInt32(b, packetFieldDstPort, int64(ev.DstPort))
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// int32 fields are sign-extended to 64 bits on the wire.
func appendInt32(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(int32(v))))
}

func consumePacket(b []byte) (model.TrafficEvent, error) {
	var ev model.TrafficEvent
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return model.TrafficEvent{}, fmt.Errorf("packet tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && isStringField(num):
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return model.TrafficEvent{}, fmt.Errorf("packet field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case packetFieldType:
				ev.Type = s
			case packetFieldSrcIP:
				ev.SrcIP = s
			case packetFieldDstIP:
				ev.DstIP = s
			case packetFieldProto:
				ev.Proto = s
			}
		case typ == protowire.VarintType && isVarintField(num):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return model.TrafficEvent{}, fmt.Errorf("packet field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case packetFieldSrcIsAgent:
				ev.SrcIsAgent = protowire.DecodeBool(v)
			case packetFieldDstIsAgent:
				ev.DstIsAgent = protowire.DecodeBool(v)
			case packetFieldSize:
				ev.Size = int64(int32(v))
			case packetFieldSrcPort:
				ev.SrcPort = int(int32(v))
			case packetFieldDstPort:
				ev.DstPort = int(int32(v))
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return model.TrafficEvent{}, fmt.Errorf("packet field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return ev, nil
}

func isStringField(num protowire.Number) bool {
	switch num {
	case packetFieldType, packetFieldSrcIP, packetFieldDstIP, packetFieldProto:
		return true
	}
	return false
}

func isVarintField(num protowire.Number) bool {
	switch num {
	case packetFieldSrcIsAgent, packetFieldDstIsAgent, packetFieldSize, packetFieldSrcPort, packetFieldDstPort:
		return true
	}
	return false
}

// skipFields validates a message whose fields are all ignored, such as packet.Empty.
func skipFields(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("empty message tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return fmt.Errorf("empty message field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}
