package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// ctrlMessage is a parsed CTRL payload: ack|<id>, nack|<id>, or
// file_ack|<transfer_id>|<fragment_no> (§6).
type ctrlMessage struct {
	cmd        string
	transferID uint16
	fragmentNo uint16
}

func parseCtrl(payload []byte) (ctrlMessage, bool) {
	parts := strings.Split(string(payload), "|")
	if len(parts) < 2 {
		return ctrlMessage{}, false
	}

	id, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return ctrlMessage{}, false
	}

	switch parts[0] {
	case "ack", "nack":
		return ctrlMessage{cmd: parts[0], transferID: uint16(id)}, true
	case "file_ack":
		if len(parts) != 3 {
			return ctrlMessage{}, false
		}
		frag, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil {
			return ctrlMessage{}, false
		}
		return ctrlMessage{cmd: "file_ack", transferID: uint16(id), fragmentNo: uint16(frag)}, true
	default:
		return ctrlMessage{}, false
	}
}

func buildAckPayload(transferID uint16) []byte {
	return []byte(fmt.Sprintf("ack|%d", transferID))
}

func buildNackPayload(transferID uint16) []byte {
	return []byte(fmt.Sprintf("nack|%d", transferID))
}

func buildFileAckPayload(transferID, fragmentNo uint16) []byte {
	return []byte(fmt.Sprintf("file_ack|%d|%d", transferID, fragmentNo))
}
