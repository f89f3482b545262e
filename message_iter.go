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

func setsDataRecords(sets []Set) []DataRecord {
	records := make([]DataRecord, 0)
	for _, s := range sets {
		ds, ok := s.Set.(*DataSet)
		if !ok {
			continue
		}
		records = append(records, ds.Records...)
	}
	return records
}

// DataRecords returns the message's data records across all data sets, in
// wire order. Template and options template sets do not contribute.
func (p *Message) DataRecords() []DataRecord {
	return setsDataRecords(p.Sets)
}

// DataRecords returns the PDU's data records across all data sets, in wire
// order.
func (p *NetflowV9PDU) DataRecords() []DataRecord {
	return setsDataRecords(p.Sets)
}

// NameDict returns the record as a mapping keyed by information element
// name. Fields sharing a name (e.g. a scope and an option field of the same
// element) collide; use KeyedDict or ordered access for those records.
func (dr *DataRecord) NameDict() map[string]interface{} {
	out := make(map[string]interface{}, len(dr.Fields))
	for _, f := range dr.Fields {
		out[f.Name()] = f.Value().Value()
	}
	return out
}

// KeyedDict returns the record as a mapping keyed by information element
// identity, i.e. (enterprise number, element id).
func (dr *DataRecord) KeyedDict() map[FieldKey]interface{} {
	out := make(map[FieldKey]interface{}, len(dr.Fields))
	for _, f := range dr.Fields {
		out[NewFieldKey(f.PEN(), f.Id())] = f.Value().Value()
	}
	return out
}

// NameDicts returns every data record of the message in name-keyed form.
func (p *Message) NameDicts() []map[string]interface{} {
	records := p.DataRecords()
	out := make([]map[string]interface{}, 0, len(records))
	for i := range records {
		out = append(out, records[i].NameDict())
	}
	return out
}

// KeyedDicts returns every data record of the message in identity-keyed form.
func (p *Message) KeyedDicts() []map[FieldKey]interface{} {
	records := p.DataRecords()
	out := make([]map[FieldKey]interface{}, 0, len(records))
	for i := range records {
		out = append(out, records[i].KeyedDict())
	}
	return out
}

