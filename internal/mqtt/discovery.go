//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"

	"zigbee-gadgets/internal/coordinator"
	"zigbee-gadgets/internal/gadget"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/sensor/gadgets_0x00124b.../1_temperature/config"
	Payload []byte
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers []string `json:"identifiers"`
	Name        string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	StateTopic          string   `json:"state_topic"`
	CommandTopic        string   `json:"command_topic,omitempty"`
	AvailabilityTopic   string   `json:"availability_topic"`
	PayloadAvailable    string   `json:"payload_available"`
	PayloadNotAvailable string   `json:"payload_not_available"`
	UnitOfMeasurement   string   `json:"unit_of_measurement,omitempty"`
	DeviceClass         string   `json:"device_class,omitempty"`
	StateClass          string   `json:"state_class,omitempty"`
	PayloadOn           string   `json:"payload_on,omitempty"`
	PayloadOff          string   `json:"payload_off,omitempty"`
	StateOn             string   `json:"state_on,omitempty"`
	StateOff            string   `json:"state_off,omitempty"`
	Device              haDevice `json:"device"`
}

// haComponent describes how a gadget type shows up in Home Assistant.
type haComponent struct {
	component   string
	deviceClass string
	unit        string
}

var haComponents = map[gadget.Type]haComponent{
	gadget.Switch:      {component: "switch", deviceClass: "switch"},
	gadget.Plug:        {component: "switch", deviceClass: "outlet"},
	gadget.Light:       {component: "switch"},
	gadget.Temperature: {component: "sensor", deviceClass: "temperature", unit: "°C"},
	gadget.Humidity:    {component: "sensor", deviceClass: "humidity", unit: "%"},
	gadget.Illuminance: {component: "sensor", deviceClass: "illuminance", unit: "lx"},
	gadget.Pir:         {component: "binary_sensor", deviceClass: "motion"},
	gadget.Buzzer:      {component: "binary_sensor", deviceClass: "sound"},
}

func deviceIdentifier(addr string) string {
	return "gadgets_" + addr
}

// objectID turns "1/Temperature/msTemperatureMeasurement/measuredValue"
// into "1_temperature".
func objectID(g gadget.Record) string {
	ref, err := gadget.ParseAuxID(g.AuxID)
	if err != nil {
		return strings.ToLower(strings.ReplaceAll(g.AuxID, "/", "_"))
	}
	return fmt.Sprintf("%d_%s", ref.EndpointID, strings.ToLower(string(g.Type)))
}

// buildDiscovery generates one HA discovery message per gadget of dev.
func buildDiscovery(dev coordinator.DeviceRecord, prefix, discoveryPrefix string) []discoveryMsg {
	nodeID := deviceIdentifier(dev.PermAddr)
	haDev := haDevice{Identifiers: []string{nodeID}, Name: dev.PermAddr}
	avail := prefix + "/" + dev.PermAddr + "/status"

	var msgs []discoveryMsg
	for _, auxID := range sortedAuxIDs(dev) {
		g := dev.Gads[auxID]
		comp, ok := haComponents[g.Type]
		if !ok {
			continue
		}

		obj := objectID(g)
		payload := haDiscovery{
			Name:                dev.PermAddr + " " + obj,
			UniqueID:            nodeID + "_" + obj,
			StateTopic:          prefix + "/" + dev.PermAddr + "/" + g.AuxID,
			AvailabilityTopic:   avail,
			PayloadAvailable:    "online",
			PayloadNotAvailable: "offline",
			DeviceClass:         comp.deviceClass,
			UnitOfMeasurement:   comp.unit,
			Device:              haDev,
		}

		switch comp.component {
		case "switch":
			payload.CommandTopic = prefix + "/" + dev.PermAddr + "/set"
			payload.PayloadOn = string(mustJSON(setRequest{AuxID: g.AuxID, Value: true}))
			payload.PayloadOff = string(mustJSON(setRequest{AuxID: g.AuxID, Value: false}))
			payload.StateOn = "true"
			payload.StateOff = "false"
		case "binary_sensor":
			payload.PayloadOn = "true"
			payload.PayloadOff = "false"
		case "sensor":
			payload.StateClass = "measurement"
		}

		msgs = append(msgs, discoveryMsg{
			Topic:   fmt.Sprintf("%s/%s/%s/%s/config", discoveryPrefix, comp.component, nodeID, obj),
			Payload: mustJSON(payload),
		})
	}
	return msgs
}
