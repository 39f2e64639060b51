package tools

import (
	"bytes"
	"encoding/json"
)

// JSONSchema renders the descriptor's parameters as a JSON Schema object.
// Properties keep their declaration order, which encoding/json cannot do
// for maps. RawSchema takes precedence when set.
func (d Descriptor) JSONSchema() json.RawMessage {
	if len(d.RawSchema) > 0 {
		return d.RawSchema
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":"object","properties":{`)
	var required []string
	for i, p := range d.Parameters {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(&buf, p.Name)
		buf.WriteByte(':')
		writeProperty(&buf, p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	buf.WriteByte('}')
	if len(required) > 0 {
		buf.WriteString(`,"required":`)
		data, _ := json.Marshal(required)
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func writeProperty(buf *bytes.Buffer, p Parameter) {
	typ := p.Type
	if typ == "" {
		typ = TypeString
	}
	buf.WriteString(`{"type":`)
	writeString(buf, typ)
	if p.Description != "" {
		buf.WriteString(`,"description":`)
		writeString(buf, p.Description)
	}
	if typ == TypeArray {
		items := p.Items
		if items == "" {
			items = TypeString
		}
		buf.WriteString(`,"items":{"type":`)
		writeString(buf, items)
		buf.WriteByte('}')
	}
	if len(p.Enum) > 0 {
		data, _ := json.Marshal(p.Enum)
		buf.WriteString(`,"enum":`)
		buf.Write(data)
	}
	buf.WriteByte('}')
}

func writeString(buf *bytes.Buffer, s string) {
	data, _ := json.Marshal(s)
	buf.Write(data)
}
