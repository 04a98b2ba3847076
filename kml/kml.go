// Package kml renders portals as a KML document.
package kml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/portaldiscoverer/discoverer/common/types"
)

const (
	Namespace   = "http://www.opengis.net/kml/2.2"
	ContentType = "application/vnd.google-earth.kml+xml"
)

type point struct {
	Coordinates string `xml:"coordinates"`
}

type placemark struct {
	XMLName     xml.Name `xml:"Placemark"`
	ID          string   `xml:"id,attr"`
	Name        string   `xml:"name"`
	Description string   `xml:"description,omitempty"`
	Point       point    `xml:"Point"`
}

// Coordinates formats c the way KML expects: longitude, latitude, altitude.
func Coordinates(c types.Coordinate) string {
	return strconv.FormatFloat(c.Lng(), 'f', 6, 64) + "," + strconv.FormatFloat(c.Lat(), 'f', 6, 64) + ",0"
}

// Encoder streams placemarks into a single KML document.
type Encoder struct {
	enc  *xml.Encoder
	w    io.Writer
	open bool
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: xml.NewEncoder(w), w: w}
}

// Begin writes the document header.
func (e *Encoder) Begin(name string) error {
	if _, err := io.WriteString(e.w, xml.Header); err != nil {
		return fmt.Errorf("write kml header: %w", err)
	}
	tokens := []xml.Token{
		xml.StartElement{Name: xml.Name{Local: "kml"}, Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: Namespace}}},
		xml.StartElement{Name: xml.Name{Local: "Document"}},
	}
	for _, t := range tokens {
		if err := e.enc.EncodeToken(t); err != nil {
			return fmt.Errorf("encode kml document: %w", err)
		}
	}
	e.open = true
	return e.enc.EncodeElement(name, xml.StartElement{Name: xml.Name{Local: "name"}})
}

// Encode writes a single portal.
func (e *Encoder) Encode(r types.CanonicalRecord, description string) error {
	return e.enc.Encode(placemark{
		ID:          string(r.ID),
		Name:        r.Name,
		Description: description,
		Point:       point{Coordinates: Coordinates(r.Coordinate)},
	})
}

// End closes the document and flushes the output.
func (e *Encoder) End() error {
	if e.open {
		for _, local := range []string{"Document", "kml"} {
			if err := e.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: local}}); err != nil {
				return fmt.Errorf("close kml document: %w", err)
			}
		}
		e.open = false
	}
	return e.enc.Flush()
}
