package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/samsamfire/gocanbus/pkg/can"
)

// parseFrame reads the candump notation : <id>#<data> or <id>#R.
// Identifiers of more than 3 hex digits are extended.
func parseFrame(s string) (can.Frame, error) {
	idPart, dataPart, ok := strings.Cut(s, "#")
	if !ok || idPart == "" {
		return can.Frame{}, fmt.Errorf("invalid frame %q, expecting <id>#<data>", s)
	}
	id, err := strconv.ParseUint(idPart, 16, 32)
	if err != nil {
		return can.Frame{}, fmt.Errorf("invalid frame id %q : %w", idPart, err)
	}
	frame := can.NewFrame(uint32(id), 0, 0)
	if len(idPart) > 3 {
		frame.ID |= can.CanEffFlag
	}
	if strings.EqualFold(dataPart, "R") {
		frame.ID |= can.CanRtrFlag
		return frame, frame.Validate()
	}
	data, err := hex.DecodeString(strings.ReplaceAll(dataPart, ".", ""))
	if err != nil {
		return can.Frame{}, fmt.Errorf("invalid frame data %q : %w", dataPart, err)
	}
	if len(data) > 8 {
		return can.Frame{}, fmt.Errorf("%w : %d data bytes", can.ErrInvalidFrame, len(data))
	}
	frame.DLC = uint8(len(data))
	copy(frame.Data[:], data)
	return frame, frame.Validate()
}
