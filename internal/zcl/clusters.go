package zcl

var Basic = ClusterDef{
	ID:   0x0000,
	Name: "genBasic",
	Attributes: []AttributeDef{
		{ID: 0x0000, Name: "zclVersion", Type: TypeUint8, Access: AccessRead},
		{ID: 0x0001, Name: "appVersion", Type: TypeUint8, Access: AccessRead},
		{ID: 0x0004, Name: "manufacturerName", Type: TypeCharStr, Access: AccessRead},
		{ID: 0x0005, Name: "modelId", Type: TypeCharStr, Access: AccessRead},
		{ID: 0x0006, Name: "dateCode", Type: TypeCharStr, Access: AccessRead},
		{ID: 0x0007, Name: "powerSource", Type: TypeEnum8, Access: AccessRead},
	},
	Commands: []CommandDef{
		{ID: 0x00, Name: "resetFactDefault", Direction: DirectionToServer},
	},
}

var OnOff = ClusterDef{
	ID:   0x0006,
	Name: "genOnOff",
	Attributes: []AttributeDef{
		{ID: 0x0000, Name: "onOff", Type: TypeBool, Access: AccessRead | AccessReport},
		{ID: 0x4001, Name: "onTime", Type: TypeUint16, Access: AccessRead | AccessWrite},
		{ID: 0x4002, Name: "offWaitTime", Type: TypeUint16, Access: AccessRead | AccessWrite},
	},
	Commands: []CommandDef{
		{ID: 0x00, Name: "off", Direction: DirectionToServer},
		{ID: 0x01, Name: "on", Direction: DirectionToServer},
		{ID: 0x02, Name: "toggle", Direction: DirectionToServer},
	},
}

var BinaryInput = ClusterDef{
	ID:   0x000F,
	Name: "genBinaryInput",
	Attributes: []AttributeDef{
		{ID: 0x0004, Name: "activeText", Type: TypeCharStr, Access: AccessRead | AccessWrite},
		{ID: 0x001C, Name: "description", Type: TypeCharStr, Access: AccessRead | AccessWrite},
		{ID: 0x0051, Name: "outOfService", Type: TypeBool, Access: AccessRead | AccessWrite},
		{ID: 0x0055, Name: "presentValue", Type: TypeBool, Access: AccessRead | AccessWrite | AccessReport},
		{ID: 0x006F, Name: "statusFlags", Type: TypeBitmap8, Access: AccessRead | AccessReport},
	},
}

var IlluminanceMeasurement = ClusterDef{
	ID:   0x0400,
	Name: "msIlluminanceMeasurement",
	Attributes: []AttributeDef{
		{ID: 0x0000, Name: "measuredValue", Type: TypeUint16, Access: AccessRead | AccessReport},
		{ID: 0x0001, Name: "minMeasuredValue", Type: TypeUint16, Access: AccessRead},
		{ID: 0x0002, Name: "maxMeasuredValue", Type: TypeUint16, Access: AccessRead},
		{ID: 0x0003, Name: "tolerance", Type: TypeUint16, Access: AccessRead},
	},
}

var TemperatureMeasurement = ClusterDef{
	ID:   0x0402,
	Name: "msTemperatureMeasurement",
	Attributes: []AttributeDef{
		{ID: 0x0000, Name: "measuredValue", Type: TypeInt16, Access: AccessRead | AccessReport},
		{ID: 0x0001, Name: "minMeasuredValue", Type: TypeInt16, Access: AccessRead},
		{ID: 0x0002, Name: "maxMeasuredValue", Type: TypeInt16, Access: AccessRead},
		{ID: 0x0003, Name: "tolerance", Type: TypeUint16, Access: AccessRead},
	},
}

var RelativeHumidity = ClusterDef{
	ID:   0x0405,
	Name: "msRelativeHumidity",
	Attributes: []AttributeDef{
		{ID: 0x0000, Name: "measuredValue", Type: TypeUint16, Access: AccessRead | AccessReport},
		{ID: 0x0001, Name: "minMeasuredValue", Type: TypeUint16, Access: AccessRead},
		{ID: 0x0002, Name: "maxMeasuredValue", Type: TypeUint16, Access: AccessRead},
		{ID: 0x0003, Name: "tolerance", Type: TypeUint16, Access: AccessRead},
	},
}

var IASZone = ClusterDef{
	ID:   0x0500,
	Name: "ssIasZone",
	Attributes: []AttributeDef{
		{ID: 0x0000, Name: "zoneState", Type: TypeEnum8, Access: AccessRead},
		{ID: 0x0001, Name: "zoneType", Type: TypeEnum16, Access: AccessRead},
		{ID: 0x0002, Name: "zoneStatus", Type: TypeBitmap16, Access: AccessRead | AccessReport},
		{ID: 0x0010, Name: "iasCieAddr", Type: TypeEUI64, Access: AccessRead | AccessWrite},
		{ID: 0x0011, Name: "zoneId", Type: TypeUint8, Access: AccessRead},
	},
	Commands: []CommandDef{
		{ID: 0x00, Name: "enrollRsp", Direction: DirectionToServer},
		{ID: 0x00, Name: "statusChangeNotification", Direction: DirectionToClient},
		{ID: 0x01, Name: "enrollReq", Direction: DirectionToClient},
	},
}

// Builtin returns the clusters registered by NewDefaultRegistry.
func Builtin() []ClusterDef {
	return []ClusterDef{
		Basic,
		OnOff,
		BinaryInput,
		IlluminanceMeasurement,
		TemperatureMeasurement,
		RelativeHumidity,
		IASZone,
	}
}
