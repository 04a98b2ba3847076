package kml

import (
	"bytes"
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/portaldiscoverer/discoverer/common/types"
)

func TestEncoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Begin("Portals"))
	require.NoError(t, enc.Encode(types.CanonicalRecord{
		ID:         "a1.16",
		Name:       "Fish & Chips",
		Coordinate: types.Coordinate{LatE6: 45523064, LngE6: -122676483},
	}, "reported by ana"))
	require.NoError(t, enc.End())

	var doc struct {
		XMLName  xml.Name `xml:"kml"`
		Document struct {
			Name       string      `xml:"name"`
			Placemarks []placemark `xml:"Placemark"`
		} `xml:"Document"`
	}
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	require.Equal(t, Namespace, doc.XMLName.Space)
	require.Equal(t, "Portals", doc.Document.Name)
	require.Len(t, doc.Document.Placemarks, 1)
	p := doc.Document.Placemarks[0]
	require.Equal(t, "a1.16", p.ID)
	require.Equal(t, "Fish & Chips", p.Name)
	require.Equal(t, "-122.676483,45.523064,0", p.Point.Coordinates)
}

func TestEmptyDocument(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Begin("empty"))
	require.NoError(t, enc.End())
	require.Contains(t, buf.String(), "<Document><name>empty</name></Document></kml>")
}
