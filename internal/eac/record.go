// Package eac reads the parts of an EAC-CPF authority record that the
// supplement needs: the display heading and a same-as Wikipedia link.
package eac

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/snac-tools/eacsupp/internal/model"
	"golang.org/x/net/html/charset"
)

const (
	NamespaceEAC   = "urn:isbn:1-931666-33-4"
	NamespaceXLink = "http://www.w3.org/1999/xlink"

	// SameAsArcrole marks a relation asserting the same identity
	SameAsArcrole = "http://socialarchive.iath.virginia.edu/control/term#sameAs"

	wikipediaHost = "en.wikipedia.org"
)

type document struct {
	XMLName xml.Name       `xml:"urn:isbn:1-931666-33-4 eac-cpf"`
	CPF     cpfDescription `xml:"urn:isbn:1-931666-33-4 cpfDescription"`
}

type cpfDescription struct {
	NameEntries []nameEntry   `xml:"urn:isbn:1-931666-33-4 identity>nameEntry"`
	Relations   []cpfRelation `xml:"urn:isbn:1-931666-33-4 relations>cpfRelation"`
}

type nameEntry struct {
	Parts []string `xml:"urn:isbn:1-931666-33-4 part"`
}

type cpfRelation struct {
	Href    string `xml:"http://www.w3.org/1999/xlink href,attr"`
	Arcrole string `xml:"http://www.w3.org/1999/xlink arcrole,attr"`
}

// ParseFile reads the record at path
func ParseFile(path string) (model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Record{}, fmt.Errorf("open record: %w", err)
	}
	defer func() { _ = f.Close() }()

	rec, err := Parse(f)
	if err != nil {
		return model.Record{}, fmt.Errorf("parse %s: %w", path, err)
	}
	rec.Path = path
	return rec, nil
}

// Parse decodes an EAC-CPF document. Encodings other than UTF-8 are
// honoured through the XML declaration.
func Parse(r io.Reader) (model.Record, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return model.Record{}, err
	}

	return model.Record{
		Heading:      heading(doc.CPF.NameEntries),
		IdentityLink: identityLink(doc.CPF.Relations),
	}, nil
}

// heading joins the non-empty parts of the first name entry
func heading(entries []nameEntry) string {
	if len(entries) == 0 {
		return ""
	}
	parts := make([]string, 0, len(entries[0].Parts))
	for _, part := range entries[0].Parts {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " ")
}

// identityLink returns the first same-as relation pointing at English Wikipedia
func identityLink(relations []cpfRelation) string {
	for _, rel := range relations {
		if rel.Arcrole == SameAsArcrole && strings.Contains(rel.Href, wikipediaHost) {
			return rel.Href
		}
	}
	return ""
}
