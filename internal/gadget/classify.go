package gadget

var (
	onOffSwitch = Descriptor{Type: Switch, ClusterID: ClusterOnOff, AttrID: AttrOnOff}
	onOffLight  = Descriptor{Type: Light, ClusterID: ClusterOnOff, AttrID: AttrOnOff}
)

// deviceTable maps HA profile device ids to their candidate gadgets.
// A candidate applies only when the endpoint exposes its cluster.
var deviceTable = map[int][]Descriptor{
	0:   {onOffSwitch}, // onOffSwitch
	1:   {onOffSwitch}, // levelControlSwitch
	259: {onOffSwitch}, // onOffLightSwitch
	260: {onOffSwitch}, // dimmerSwitch
	261: {onOffSwitch}, // colorDimmerSwitch

	12: {{Type: Illuminance, ClusterID: ClusterIlluminance, AttrID: AttrMeasuredValue}}, // simpleSensor
	81: {{Type: Plug, ClusterID: ClusterOnOff, AttrID: AttrOnOff}},                      // smartPlug

	256: {onOffLight}, // onOffLight
	257: {onOffLight}, // dimmableLight
	258: {onOffLight}, // coloredDimmableLight

	770: { // temperatureSensor
		{Type: Temperature, ClusterID: ClusterTemperature, AttrID: AttrMeasuredValue},
		{Type: Humidity, ClusterID: ClusterHumidity, AttrID: AttrMeasuredValue},
	},

	1026: {{Type: Pir, ClusterID: ClusterIASZone, AttrID: AttrZoneStatus}},          // iasZone
	1027: {{Type: Buzzer, ClusterID: ClusterBinaryInput, AttrID: AttrPresentValue}}, // iasWarningDevice
}

// Classify returns the gadgets a device type yields given the clusters
// available on the endpoint, in table order. Unknown codes yield nil.
func Classify(deviceType int, available map[string]bool) []Descriptor {
	var out []Descriptor
	for _, d := range deviceTable[deviceType] {
		if available[d.ClusterID] {
			out = append(out, d)
		}
	}
	return out
}

// KnownDeviceType reports whether the classification table has an entry for code.
func KnownDeviceType(deviceType int) bool {
	_, ok := deviceTable[deviceType]
	return ok
}
