package zcl

import "fmt"

// ZCL status codes
const (
	StatusSuccess         uint8 = 0x00
	StatusFailure         uint8 = 0x01
	StatusUnsupportedAttr uint8 = 0x86
	StatusInvalidValue    uint8 = 0x87
	StatusReadOnly        uint8 = 0x88
	StatusNotFound        uint8 = 0x8B
	StatusUnreportable    uint8 = 0x8C
	StatusInvalidDataType uint8 = 0x8D
	StatusTimeout         uint8 = 0x94
)

var statusNames = map[uint8]string{
	StatusSuccess:         "success",
	StatusFailure:         "failure",
	StatusUnsupportedAttr: "unsupported attribute",
	StatusInvalidValue:    "invalid value",
	StatusReadOnly:        "read only",
	StatusNotFound:        "not found",
	StatusUnreportable:    "unreportable attribute",
	StatusInvalidDataType: "invalid data type",
	StatusTimeout:         "timeout",
}

// StatusName returns a readable name for a ZCL status code.
func StatusName(status uint8) string {
	if n, ok := statusNames[status]; ok {
		return n
	}
	return fmt.Sprintf("status 0x%02X", status)
}
