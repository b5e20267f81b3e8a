// Package zcl holds the Zigbee Cluster Library definitions the gateway
// understands: cluster, attribute and command ids with their names, and the
// scalar data types used to carry attribute values.
package zcl

// Access flags
const (
	AccessRead   uint8 = 0x01
	AccessWrite  uint8 = 0x02
	AccessReport uint8 = 0x04
)

// AttributeDef defines a ZCL attribute.
type AttributeDef struct {
	ID     uint16 `json:"id"`
	Name   string `json:"name"`
	Type   uint8  `json:"type"`
	Access uint8  `json:"access"`
}

// IsWritable returns true if the attribute can be written.
func (a *AttributeDef) IsWritable() bool {
	return a.Access&AccessWrite != 0
}

// IsReportable returns true if the attribute supports reporting.
func (a *AttributeDef) IsReportable() bool {
	return a.Access&AccessReport != 0
}

// CommandDirection indicates the direction of a cluster command.
type CommandDirection string

const (
	DirectionToServer CommandDirection = "toServer"
	DirectionToClient CommandDirection = "toClient"
)

// CommandDef defines a cluster-specific command.
type CommandDef struct {
	ID        uint8            `json:"id"`
	Name      string           `json:"name"`
	Direction CommandDirection `json:"direction"`
}

// ClusterDef defines a cluster by its numeric id and its stack name
// (e.g. 0x0006 "genOnOff").
type ClusterDef struct {
	ID         uint16         `json:"id"`
	Name       string         `json:"name"`
	Attributes []AttributeDef `json:"attributes,omitempty"`
	Commands   []CommandDef   `json:"commands,omitempty"`
}

// FindAttribute looks up an attribute by ID.
func (c *ClusterDef) FindAttribute(id uint16) *AttributeDef {
	for i := range c.Attributes {
		if c.Attributes[i].ID == id {
			return &c.Attributes[i]
		}
	}
	return nil
}

// AttributeByName looks up an attribute by name.
func (c *ClusterDef) AttributeByName(name string) *AttributeDef {
	for i := range c.Attributes {
		if c.Attributes[i].Name == name {
			return &c.Attributes[i]
		}
	}
	return nil
}

// FindCommand looks up a command by ID and direction.
func (c *ClusterDef) FindCommand(id uint8, dir CommandDirection) *CommandDef {
	for i := range c.Commands {
		if c.Commands[i].ID == id && c.Commands[i].Direction == dir {
			return &c.Commands[i]
		}
	}
	return nil
}

// CommandByName looks up a command by name and direction.
func (c *ClusterDef) CommandByName(name string, dir CommandDirection) *CommandDef {
	for i := range c.Commands {
		if c.Commands[i].Name == name && c.Commands[i].Direction == dir {
			return &c.Commands[i]
		}
	}
	return nil
}

// Reportable returns the attributes that support reporting.
func (c *ClusterDef) Reportable() []AttributeDef {
	var out []AttributeDef
	for _, a := range c.Attributes {
		if a.IsReportable() {
			out = append(out, a)
		}
	}
	return out
}

func (c *ClusterDef) clone() *ClusterDef {
	cp := *c
	cp.Attributes = append([]AttributeDef(nil), c.Attributes...)
	cp.Commands = append([]CommandDef(nil), c.Commands...)
	return &cp
}
