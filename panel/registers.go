// file: panel/registers.go
package panel

import (
	"encoding/binary"
	"fmt"

	"go-panel-relay/models"
)

// Holding register map of the panel I/O board.
const (
	regInfo       uint16 = 0x000
	regInfoCount  uint16 = 3
	regDouts      uint16 = 0x200
	regRelays     uint16 = 0x300
	regMeters     uint16 = 0x400
	regsPerMeter  uint16 = 4
	comStatusOK          = 5
	meterFuncMask uint16 = 0x10
	meterStsMask  uint16 = 0x0f
)

// Meter is one decoded multimeter block.
type Meter struct {
	ComStatus   uint8
	Amperemeter bool
	Status      uint8
	Value       int32
}

// DeviceInfo identifies the I/O board.
type DeviceInfo struct {
	Model     string `json:"model"`
	Firmware  string `json:"firmware"`
	ComStatus int    `json:"comStatus"`
}

// registers converts a big-endian Modbus payload into register values.
func registers(b []byte) ([]uint16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("odd register payload length %d", len(b))
	}
	regs := make([]uint16, len(b)/2)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(b[2*i:])
	}
	return regs, nil
}

// decodeInfo extracts the 4-char model and 2-char firmware from the info block.
func decodeInfo(regs []uint16) (model, firmware string, err error) {
	if len(regs) < int(regInfoCount) {
		return "", "", fmt.Errorf("info block needs %d registers, got %d", regInfoCount, len(regs))
	}
	m := []byte{lo(regs[0]), hi(regs[0]), lo(regs[1]), hi(regs[1])}
	f := []byte{lo(regs[2]), hi(regs[2])}
	return trimNUL(m), trimNUL(f), nil
}

// decodeMeters splits the multimeter block into count meters.
func decodeMeters(regs []uint16, count int) ([]Meter, error) {
	if len(regs) < count*int(regsPerMeter) {
		return nil, fmt.Errorf("meter block needs %d registers, got %d", count*int(regsPerMeter), len(regs))
	}
	meters := make([]Meter, count)
	for x := range meters {
		base := x * int(regsPerMeter)
		meters[x] = Meter{
			ComStatus:   lo(regs[base]),
			Amperemeter: regs[base+1]&meterFuncMask != 0,
			Status:      uint8(regs[base+1] & meterStsMask),
			Value:       int32(uint32(regs[base+2]) | uint32(regs[base+3])<<16),
		}
	}
	return meters, nil
}

// readings groups meters by function. A meter with a zero status reads 0.
func readings(meters []Meter) models.PanelReadings {
	var r models.PanelReadings
	for _, m := range meters {
		v := int32(0)
		if m.Status != 0 {
			v = m.Value
		}
		if m.Amperemeter {
			r.Amperemeter = append(r.Amperemeter, v)
		} else {
			r.Voltmeter = append(r.Voltmeter, v)
		}
	}
	return r
}

func lo(r uint16) byte { return byte(r & 0xff) }
func hi(r uint16) byte { return byte(r >> 8) }

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
