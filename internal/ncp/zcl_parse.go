package ncp

import (
	"encoding/binary"
	"fmt"

	"zigbee-gadgets/internal/zcl"
)

// attributeRecord is one attribute of a ZCL read-response or report payload.
type attributeRecord struct {
	AttrID   uint16
	Status   uint8
	DataType uint8
	Value    any
}

// parseAttributeRecords walks a packed attribute list. With withStatus the
// records follow the read attributes response layout (id, status, type,
// value), otherwise the report attributes layout (id, type, value).
// Records with a non-zero status carry no value. Parsing stops at the first
// type whose length cannot be determined.
func parseAttributeRecords(data []byte, withStatus bool) ([]attributeRecord, error) {
	var out []attributeRecord
	for len(data) > 0 {
		hdr := 2
		if withStatus {
			hdr = 3
		}
		if len(data) < hdr {
			return out, fmt.Errorf("attribute record truncated: %d bytes left", len(data))
		}
		rec := attributeRecord{AttrID: binary.LittleEndian.Uint16(data[0:2])}
		data = data[2:]
		if withStatus {
			rec.Status = data[0]
			data = data[1:]
			if rec.Status != zcl.StatusSuccess {
				out = append(out, rec)
				continue
			}
		}
		if len(data) < 1 {
			return out, fmt.Errorf("attribute 0x%04X: missing data type", rec.AttrID)
		}
		rec.DataType = data[0]
		data = data[1:]

		val, n, err := zcl.DecodeValue(rec.DataType, data)
		if err != nil {
			return out, fmt.Errorf("attribute 0x%04X: %w", rec.AttrID, err)
		}
		rec.Value = val
		data = data[n:]
		out = append(out, rec)
	}
	return out, nil
}

// namedAttributes converts records of one cluster into a name -> value map
// using the registry. Unknown attributes keep their hex id as name.
func namedAttributes(reg *zcl.Registry, clusterID uint16, recs []attributeRecord) map[string]any {
	attrs := make(map[string]any, len(recs))
	for _, r := range recs {
		if r.Status != zcl.StatusSuccess {
			continue
		}
		name := fmt.Sprintf("0x%04X", r.AttrID)
		if def, ok := reg.Attribute(clusterID, r.AttrID); ok {
			name = def.Name
		}
		attrs[name] = r.Value
	}
	return attrs
}
