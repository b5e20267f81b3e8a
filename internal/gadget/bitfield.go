package gadget

// ZoneStatusBits names the IAS zone status bits, least-significant first.
var ZoneStatusBits = []string{
	"alarm1", "alarm2", "tamper", "battery",
	"supervisionReports", "restoreReports", "trouble", "ac",
	"reserved1", "reserved2", "reserved3", "reserved4",
	"reserved5", "reserved6", "reserved7", "reserved8",
}

// Decode maps bit i of mask to names[i]. Every name is present in the
// result; bits the mask does not set decode to false.
func Decode(mask uint64, names []string) map[string]bool {
	flags := make(map[string]bool, len(names))
	for i, name := range names {
		flags[name] = i < 64 && mask&(1<<uint(i)) != 0
	}
	return flags
}

// DecodeZoneStatus decodes a 16-bit zone status into its named flags.
func DecodeZoneStatus(mask uint16) map[string]bool {
	return Decode(uint64(mask), ZoneStatusBits)
}
