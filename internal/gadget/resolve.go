package gadget

// Resolve classifies an endpoint from its full attribute dump
// (cluster -> attribute -> raw value) and returns one record per gadget.
// It returns ErrUnclassifiable when the endpoint yields no gadget.
func Resolve(epID, deviceType int, dump map[string]map[string]any) ([]Record, error) {
	available := make(map[string]bool, len(dump))
	for cid := range dump {
		available[cid] = true
	}

	descs := Classify(deviceType, available)
	if len(descs) == 0 {
		return nil, ErrUnclassifiable
	}

	records := make([]Record, 0, len(descs))
	for _, d := range descs {
		raw, ok := dump[d.ClusterID][d.AttrID]
		var value any
		if ok {
			value = Convert(d, raw)
		}
		records = append(records, Record{
			AuxID: AuxID(epID, d),
			Type:  d.Type,
			Value: value,
		})
	}
	return records, nil
}

// ResolveChange resolves only the gadgets backed by clusterID, reading
// values from a change report of that cluster. Gadgets whose attribute is
// absent from attrs are skipped.
func ResolveChange(epID, deviceType int, clusterID string, attrs map[string]any) ([]Record, error) {
	descs := Classify(deviceType, map[string]bool{clusterID: true})
	if len(descs) == 0 {
		return nil, ErrUnclassifiable
	}

	var records []Record
	for _, d := range descs {
		raw, ok := attrs[d.AttrID]
		if !ok {
			continue
		}
		records = append(records, Record{
			AuxID: AuxID(epID, d),
			Type:  d.Type,
			Value: Convert(d, raw),
		})
	}
	return records, nil
}

// Convert applies the gadget value rules to a raw attribute value:
// measuredValue is fixed-point hundredths, zoneStatus reduces to its alarm1
// flag and on/off style attributes become booleans. A zoneStatus that is not
// a 16-bit mask reads as no alarm. Other values of an unexpected shape pass
// through unchanged.
func Convert(d Descriptor, raw any) any {
	switch d.AttrID {
	case AttrMeasuredValue:
		if f, ok := toFloat64(raw); ok {
			return f / 100
		}
	case AttrZoneStatus:
		if b, ok := raw.(bool); ok {
			return b
		}
		if n, ok := toUint64(raw); ok && n <= 0xffff {
			return DecodeZoneStatus(uint16(n))["alarm1"]
		}
		return false
	case AttrOnOff, AttrPresentValue:
		if b, ok := ToBool(raw); ok {
			return b
		}
	}
	return raw
}
