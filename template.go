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
	"encoding/json"
	"fmt"
	"io"
	"time"
)

type TemplateMetadata struct {
	Name                string            `json:"name,omitempty"`
	TemplateId          uint16            `json:"template_id,omitempty"`
	ObservationDomainId uint32            `json:"observation_domain_id,omitempty"`
	CreationTimestamp   time.Time         `json:"created"`
	Labels              map[string]string `json:"labels,omitempty"`
	Annotations         map[string]string `json:"annotations,omitempty"`
}

type Template struct {
	*TemplateMetadata `json:"metadata,omitempty"`
	Record            templateRecord

	templateCache TemplateCache
	fieldCache    FieldCache
}

// TemplateRecord is the interface that TemplateRecord and OptionsTemplateRecord need to implement
type templateRecord interface {
	json.Marshaler
	json.Unmarshaler

	Type() string
	Id() uint16

	Encode(io.Writer) (int, error)

	Decode(io.Reader) (int, error)
}

func (tr *Template) WithFieldCache(f FieldCache) *Template {
	tr.fieldCache = f
	return tr
}

func (tr *Template) WithTemplateCache(f TemplateCache) *Template {
	tr.templateCache = f
	return tr
}

var _ json.Marshaler = &Template{}
var _ json.Unmarshaler = &Template{}

func (tr Template) MarshalJSON() ([]byte, error) {
	type itr struct {
		Kind     string            `json:"kind"`
		Metadata *TemplateMetadata `json:"metadata,omitempty"`
		Record   json.RawMessage   `json:"record"`
	}

	ot := itr{}

	switch t := tr.Record.(type) {
	case *TemplateRecord, *OptionsTemplateRecord:
		ot.Kind = t.Type()
		b, err := t.MarshalJSON()
		if err != nil {
			return nil, err
		}
		ot.Record = b
		return json.Marshal(ot)
	default:
		return nil, fmt.Errorf("cannot use %T as template for templates.Template", t)
	}
}

func (t *Template) UnmarshalJSON(in []byte) error {
	type itr struct {
		Kind              string `json:"kind"`
		*TemplateMetadata `json:"metadata,omitempty"`
		Record            json.RawMessage `json:"record"`
	}

	it := itr{}

	err := json.Unmarshal(in, &it)
	if err != nil {
		return nil
	}
	switch it.Kind {
	case KindTemplateRecord:
		tr := TemplateRecord{
			fieldCache:    t.fieldCache,
			templateCache: t.templateCache,
		}
		err := json.Unmarshal(it.Record, &tr)
		if err != nil {
			return err
		}
		t.Record = &tr
	case KindOptionsTemplateRecord:
		otr := OptionsTemplateRecord{
			fieldCache:    t.fieldCache,
			templateCache: t.templateCache,
		}
		err := json.Unmarshal(it.Record, &otr)
		if err != nil {
			return err
		}
		t.Record = &otr
	default:
		return fmt.Errorf("cannot use %v as a template for unmarshaling", it.Record)
	}
	return nil
}

// NewTemplate assembles a data template for the export path from completed
// fields, e.g. those built by Catalog.FieldsForSpecs. The fields double as
// the record schema announced on the wire in a template set with id 2.
//
// Template ids below 256 are reserved for set framing and rejected.
func NewTemplate(tid uint16, fields []Field) (*Template, error) {
	if tid < 256 {
		return nil, fmt.Errorf("template id %d is reserved, data templates start at 256", tid)
	}
	return &Template{
		TemplateMetadata: &TemplateMetadata{
			TemplateId:        tid,
			CreationTimestamp: time.Now(),
		},
		Record: &TemplateRecord{
			TemplateId: tid,
			FieldCount: uint16(len(fields)),
			Fields:     fields,
		},
	}, nil
}

// NewOptionsTemplate assembles an options template (set id 3) with the given
// scope and option fields. At least one scope field is required.
func NewOptionsTemplate(tid uint16, scopes, options []Field) (*Template, error) {
	if tid < 256 {
		return nil, fmt.Errorf("template id %d is reserved, options templates start at 256", tid)
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("options template %d needs at least one scope field", tid)
	}
	for i, f := range scopes {
		scopes[i] = f.SetScoped()
	}
	return &Template{
		TemplateMetadata: &TemplateMetadata{
			TemplateId:        tid,
			CreationTimestamp: time.Now(),
		},
		Record: &OptionsTemplateRecord{
			TemplateId:      tid,
			FieldCount:      uint16(len(scopes) + len(options)),
			ScopeFieldCount: uint16(len(scopes)),
			Scopes:          scopes,
			Options:         options,
		},
	}, nil
}

// Fields returns the template's fields in wire order, scope fields first for
// options templates. The returned slice is the template's own; callers must
// Clone fields before mutating them.
func (tr *Template) Fields() []Field {
	switch r := tr.Record.(type) {
	case *TemplateRecord:
		return r.Fields
	case *OptionsTemplateRecord:
		fs := make([]Field, 0, len(r.Scopes)+len(r.Options))
		fs = append(fs, r.Scopes...)
		fs = append(fs, r.Options...)
		return fs
	default:
		return nil
	}
}

// setId returns the id of the set a template record of this kind is exported
// in: 2 for data templates and 3 for options templates.
func (tr *Template) setId() (uint16, error) {
	switch tr.Record.(type) {
	case *TemplateRecord:
		return IPFIX, nil
	case *OptionsTemplateRecord:
		return IPFIXOptions, nil
	default:
		return 0, fmt.Errorf("cannot determine set id for template record of type %T", tr.Record)
	}
}

// minRecordLength is the smallest number of bytes a data record described by
// this template can occupy on the wire: fixed fields contribute their full
// width, variable-length fields their one-byte length prefix.
func (tr *Template) minRecordLength() int {
	var n int
	for _, f := range tr.Fields() {
		if l := f.Length(); l == VariableLength {
			n++
		} else {
			n += int(l)
		}
	}
	return n
}
