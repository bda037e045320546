package model

import "encoding/xml"

// Record is the projection of an EAC-CPF authority record this tool consumes
type Record struct {
	Path         string // Source file
	Heading      string // Display name from the first nameEntry
	IdentityLink string // Same-as link to an English Wikipedia article, if any
}

// HasIdentityLink reports whether the record links to an external encyclopedia article
func (r Record) HasIdentityLink() bool {
	return r.IdentityLink != ""
}

// Thumbnail is an image found through a record's linked identity
type Thumbnail struct {
	URL         string // Verified thumbnail URL; empty when no variant could be reached
	Attribution string // Rights/attribution page paired with the image
}

// Presence holds the aggregator "represented in" flags
type Presence struct {
	DPLA      bool
	Europeana bool
}

// Supplement is the single element written per processed record
type Supplement struct {
	XMLName         xml.Name `xml:"supplemental"`
	Name            string   `xml:"name,attr"`
	Thumbnail       string   `xml:"thumbnail,attr,omitempty"`
	ThumbnailRights string   `xml:"thumbnailRights,attr,omitempty"`
	DPLA            Flag     `xml:"dpla,attr,omitempty"`
	Europeana       Flag     `xml:"europeana,attr,omitempty"`
}

// Flag is a presence marker that is only serialized when set
type Flag bool

// MarshalXMLAttr renders a set flag as "true"; omitempty drops unset flags
func (f Flag) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: "true"}, nil
}

// NewSupplement assembles the output element. Attribution is only carried
// alongside a verified thumbnail URL.
func NewSupplement(rec Record, thumb *Thumbnail, presence Presence) *Supplement {
	s := &Supplement{
		Name:      rec.Heading,
		DPLA:      Flag(presence.DPLA),
		Europeana: Flag(presence.Europeana),
	}
	if thumb != nil && thumb.URL != "" {
		s.Thumbnail = thumb.URL
		s.ThumbnailRights = thumb.Attribution
	}
	return s
}
