package entity

import (
	"encoding/xml"
	"fmt"
)

// MarshalXML writes the tag, its attributes, then the text value followed by
// the children. Removed children are skipped.
func (n *node) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: xml.Name{Local: n.name}}
	for _, a := range n.attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if n.hasValue && n.value != "" {
		if err := enc.EncodeToken(xml.CharData(n.value)); err != nil {
			return err
		}
	}
	for _, c := range n.children {
		if c.removed {
			continue
		}
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("encode %s: %w", c.name, err)
		}
	}
	return enc.EncodeToken(start.End())
}

// ToXML renders an entity as compact XML.
func ToXML(e Entity) (string, error) {
	out, err := xml.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
