/*
Copyright 2023 Alexander Bartolomey (github@alexanderbartolomey.de)

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ipfix

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/flowlens/ipfix/iana/semantics"
	"github.com/flowlens/ipfix/iana/status"
)

// iespecPattern matches a textual information element specification of the
// form:
//
//	name(pen/num)<type>[length]
//
// where pen, num, type and length are all optional, but at least one of
// name, (pen/num) or <type> must be present for the spec to resolve to
// anything. Examples:
//
//	octetDeltaCount(1)<unsigned64>[8]
//	sourceIPv4Address(8)<ipv4Address>[4]
//	(29305/1)<unsigned64>
//	mplsTopLabelStackSection
var iespecPattern = regexp.MustCompile(`^([^\s\[<(]+)?(\(((\d+)/)?(\d+)\))?(<(\S+)>)?(\[(\S+)\])?`)

// ParsedIESpec is the decomposition of a textual IE spec into its constituent
// parts, mirroring the fields recognized by iespecPattern.
type ParsedIESpec struct {
	Name   string
	PEN    uint32
	Number uint16
	Type   string
	Length uint16
}

// ParseIESpec decomposes a textual information element spec into its parts.
// A spec from which none of name, number, type or length can be parsed is
// rejected with an error.
func ParseIESpec(spec string) (ParsedIESpec, error) {
	spec = strings.TrimSpace(spec)
	m := iespecPattern.FindStringSubmatch(spec)
	if m == nil {
		return ParsedIESpec{}, fmt.Errorf("malformed information element spec %q", spec)
	}

	p := ParsedIESpec{Name: m[1], Type: m[7]}

	if m[5] != "" {
		num, err := strconv.ParseUint(m[5], 10, 16)
		if err != nil {
			return ParsedIESpec{}, fmt.Errorf("invalid element number in spec %q: %w", spec, err)
		}
		p.Number = uint16(num)
	}
	if m[4] != "" {
		pen, err := strconv.ParseUint(m[4], 10, 32)
		if err != nil {
			return ParsedIESpec{}, fmt.Errorf("invalid enterprise number in spec %q: %w", spec, err)
		}
		p.PEN = uint32(pen)
	}
	if m[9] != "" {
		if m[9] == "v" || m[9] == "var" || m[9] == "varlen" {
			p.Length = VariableLength
		} else {
			length, err := strconv.ParseUint(m[9], 10, 16)
			if err != nil {
				return ParsedIESpec{}, fmt.Errorf("invalid length in spec %q: %w", spec, err)
			}
			p.Length = uint16(length)
		}
	}

	if p.Name == "" && p.PEN == 0 && p.Number == 0 && p.Type == "" && p.Length == 0 {
		return ParsedIESpec{}, fmt.Errorf("unrecognized information element spec %q", spec)
	}

	return p, nil
}

// Catalog is an explicit, non-global information element registry, resolving
// textual specs and template entries against a backing FieldCache. It is the
// counterpart of the field cache's runtime, decode-path lookups: Catalog is
// meant to be populated ahead of time, from spec files or individual calls to
// ForSpec, to seed a FieldCache with named, typed information elements before
// any message is ever decoded.
//
// Unlike a package-level registry, a Catalog instance carries no global
// state: callers wanting isolated IE universes (e.g. one per collector
// instance under test) can each construct their own.
type Catalog struct {
	fields FieldCache

	byName map[string]InformationElement
}

// NewCatalog creates a Catalog that registers information elements into the
// given FieldCache as they are resolved.
func NewCatalog(fields FieldCache) *Catalog {
	return &Catalog{
		fields: fields,
		byName: make(map[string]InformationElement),
	}
}

// ForSpec resolves a textual information element spec against the catalog.
//
// Resolution follows the same order as the textual registry it is modeled
// on: if the spec names a known IE by name, that IE is returned (the spec's
// length is not applied; see FieldForSpec). Otherwise, if the spec names a
// (pen, num) pair already known to the backing field cache, that IE is returned. Otherwise, if the
// spec carries an explicit type, a new IE is synthesized, registered into
// the catalog and the backing field cache, and returned. A spec with neither
// a known name or number nor a usable type is an error.
func (c *Catalog) ForSpec(ctx context.Context, spec string) (InformationElement, error) {
	p, err := ParseIESpec(spec)
	if err != nil {
		return InformationElement{}, err
	}

	if p.Name != "" && p.PEN == 0 && p.Number == 0 {
		if ie, ok := c.byName[p.Name]; ok {
			return ie.forLength(p.Length), nil
		}
	}

	if p.Number != 0 {
		if ie, err := c.fields.Get(ctx, NewFieldKey(p.PEN, p.Number)); err == nil {
			return ie.forLength(p.Length), nil
		}
	}

	if p.Type == "" {
		return InformationElement{}, fmt.Errorf("cannot create new information element without a type: %q", spec)
	}

	constructor, err := ConstructorForType(p.Type)
	if err != nil {
		return InformationElement{}, err
	}

	name := p.Name
	if name == "" {
		name = unassignedName(p.PEN, p.Number)
	}

	length := p.Length
	if length == 0 {
		length = constructor().DefaultLength()
	}

	ie := InformationElement{
		Name:         name,
		Id:           p.Number,
		EnterpriseId: p.PEN,
		Constructor:  constructor,
		Semantics:    semantics.Default,
		Status:       status.Current,
		Type:         &p.Type,
	}

	if err := c.register(ctx, ie); err != nil {
		return InformationElement{}, err
	}

	return ie, nil
}

// forLength returns ie itself if length is zero, and a copy of ie otherwise.
// The copy is not narrowed: InformationElement carries no length.
func (i InformationElement) forLength(length uint16) InformationElement {
	if length == 0 {
		return i
	}
	ie := i.Clone()
	// the field cache derives encoded width from the FieldBuilder, not from
	// the InformationElement itself, so forLength only needs to preserve the
	// prototype's identity; callers that need the narrowed width pass length
	// on to NewFieldBuilder(...).SetLength(...) at build time.
	return ie
}

// ForTemplateEntry resolves the information element for a (pen, num) pair
// seen in a template, synthesizing an octetArray placeholder IE when no
// better definition is known; length is not recorded on the IE. It never errors.
func (c *Catalog) ForTemplateEntry(ctx context.Context, pen uint32, num uint16, length uint16) InformationElement {
	if ie, err := c.fields.Get(ctx, NewFieldKey(pen, num)); err == nil {
		return ie.forLength(length)
	}

	ie := InformationElement{
		Name:         unassignedName(pen, num),
		Id:           num,
		EnterpriseId: pen,
		Constructor:  NewOctetArray,
		Semantics:    semantics.Undefined,
		Status:       status.Undefined,
	}
	_ = c.register(ctx, ie)
	return ie
}

func (c *Catalog) register(ctx context.Context, ie InformationElement) error {
	if err := c.fields.Add(ctx, ie); err != nil {
		return err
	}
	c.byName[ie.Name] = ie
	return nil
}

// SpecList parses and resolves every non-empty, non-comment line in r as an
// IE spec, in order, registering each result into the catalog. Lines
// beginning with '#' are treated as comments and skipped.
func (c *Catalog) SpecList(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := c.ForSpec(ctx, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// UseSpecFile loads an IE specification file (as produced by the UTF-8 text
// format one-spec-per-line) into the catalog.
func (c *Catalog) UseSpecFile(ctx context.Context, r io.Reader) error {
	return c.SpecList(ctx, r)
}

// UseIANADefault loads the catalog's bundled IANA IPFIX information element
// registry, the same set returned by IANA().
func (c *Catalog) UseIANADefault(ctx context.Context) error {
	for _, ie := range IANA() {
		if err := c.register(ctx, *ie); err != nil {
			return err
		}
	}
	return nil
}

// Use5103Default loads the catalog's bundled RFC 5103 reverse information
// element registry, the same set returned by RFC5103().
func (c *Catalog) Use5103Default(ctx context.Context) error {
	for _, ie := range RFC5103() {
		if err := c.register(ctx, *ie); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes every information element known to the catalog's name index.
// It does not affect the backing FieldCache, which may be shared with other
// state; callers wanting a fully clean slate should also discard or reset
// the FieldCache.
func (c *Catalog) Clear() {
	c.byName = make(map[string]InformationElement)
}

// FieldForSpec resolves a textual spec like ForSpec and completes it into an
// export-ready Field. Unlike ForSpec, the spec's explicit length survives
// into the field, so reduced-length encodings ("octetDeltaCount[4]") and
// variable-length fields ("interfaceName[v]") come out ready for template
// construction.
func (c *Catalog) FieldForSpec(ctx context.Context, spec string) (Field, error) {
	p, err := ParseIESpec(spec)
	if err != nil {
		return nil, err
	}
	ie, err := c.ForSpec(ctx, spec)
	if err != nil {
		return nil, err
	}
	if ie.Constructor == nil {
		return nil, fmt.Errorf("information element %q has no data type", ie.Name)
	}

	length := p.Length
	if length == 0 {
		length = ie.Constructor().DefaultLength()
		if length == 0 {
			// octetArray and string have no natural width, they are encoded
			// variable-length unless the spec pins them down
			length = VariableLength
		}
	}

	return NewFieldBuilder(&ie).
		SetLength(length).
		SetPEN(ie.EnterpriseId).
		SetFieldManager(c.fields).
		Complete(), nil
}

// FieldsForSpecs resolves each spec in order into a Field, ready to be handed
// to NewTemplate or NewOptionsTemplate.
func (c *Catalog) FieldsForSpecs(ctx context.Context, specs ...string) ([]Field, error) {
	fields := make([]Field, 0, len(specs))
	for _, spec := range specs {
		f, err := c.FieldForSpec(ctx, spec)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}
