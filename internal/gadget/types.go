// Package gadget maps raw Zigbee endpoints onto a small set of generic,
// UI-friendly gadgets and tracks their last known values.
package gadget

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the generic gadget kind presented to the UI.
type Type string

const (
	Switch      Type = "Switch"
	Plug        Type = "Plug"
	Light       Type = "Light"
	Illuminance Type = "Illuminance"
	Temperature Type = "Temperature"
	Humidity    Type = "Humidity"
	Pir         Type = "Pir"
	Buzzer      Type = "Buzzer"
)

// Cluster and attribute names used by the classification table.
const (
	ClusterOnOff       = "genOnOff"
	ClusterBinaryInput = "genBinaryInput"
	ClusterIlluminance = "msIlluminanceMeasurement"
	ClusterTemperature = "msTemperatureMeasurement"
	ClusterHumidity    = "msRelativeHumidity"
	ClusterIASZone     = "ssIasZone"

	AttrOnOff         = "onOff"
	AttrMeasuredValue = "measuredValue"
	AttrZoneStatus    = "zoneStatus"
	AttrPresentValue  = "presentValue"
)

// Descriptor names one observable attribute of an endpoint as a gadget.
type Descriptor struct {
	Type      Type   `json:"type"`
	ClusterID string `json:"cid"`
	AttrID    string `json:"rid"`
}

// Record is a resolved gadget with its current, unit-scaled value.
// Value is a float64 for measurements and a bool for on/off style attributes.
type Record struct {
	AuxID string `json:"auxId"`
	Type  Type   `json:"type"`
	Value any    `json:"value"`
}

// AuxID builds the gadget address "epId/type/cid/rid".
func AuxID(epID int, d Descriptor) string {
	return strconv.Itoa(epID) + "/" + string(d.Type) + "/" + d.ClusterID + "/" + d.AttrID
}

// AuxRef is a parsed auxId.
type AuxRef struct {
	EndpointID int
	Type       Type
	ClusterID  string
	AttrID     string
}

// String reassembles the auxId.
func (r AuxRef) String() string {
	return AuxID(r.EndpointID, Descriptor{Type: r.Type, ClusterID: r.ClusterID, AttrID: r.AttrID})
}

// ParseAuxID splits an auxId into its parts. It fails with ErrMalformedAuxID
// unless the id has exactly four non-empty segments and a numeric endpoint.
func ParseAuxID(auxID string) (AuxRef, error) {
	parts := strings.Split(auxID, "/")
	if len(parts) != 4 {
		return AuxRef{}, fmt.Errorf("%w: %q has %d segments, want 4", ErrMalformedAuxID, auxID, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return AuxRef{}, fmt.Errorf("%w: %q has an empty segment", ErrMalformedAuxID, auxID)
		}
	}
	ep, err := strconv.Atoi(parts[0])
	if err != nil || ep < 0 || ep > 255 {
		return AuxRef{}, fmt.Errorf("%w: %q has invalid endpoint %q", ErrMalformedAuxID, auxID, parts[0])
	}
	return AuxRef{
		EndpointID: ep,
		Type:       Type(parts[1]),
		ClusterID:  parts[2],
		AttrID:     parts[3],
	}, nil
}
