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
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

// newExportEnvironment wires up the cache pair, catalog and message buffer
// the way an exporting process would at startup.
func newExportEnvironment(t *testing.T) (TemplateCache, FieldCache, *Catalog, *MessageBuffer) {
	t.Helper()

	templates := NewDefaultEphemeralCache()
	fields := NewEphemeralFieldCache(templates)
	catalog := NewCatalog(fields)
	if err := catalog.UseIANADefault(context.Background()); err != nil {
		t.Fatal(err)
	}
	return templates, fields, catalog, NewMessageBuffer(templates, fields)
}

func TestMessageBufferRoundTrip(t *testing.T) {
	ctx := context.Background()
	templates, fields, catalog, mb := newExportEnvironment(t)

	fs, err := catalog.FieldsForSpecs(ctx, "sourceIPv4Address", "packetDeltaCount")
	if err != nil {
		t.Fatal(err)
	}
	tmpl, err := NewTemplate(256, fs)
	if err != nil {
		t.Fatal(err)
	}

	mb.SetExportTime(time.Unix(1371823200, 0))
	if err := mb.BeginExport(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := mb.AddTemplate(ctx, tmpl, true); err != nil {
		t.Fatal(err)
	}
	err = mb.ExportNamedRecord(ctx, 256, map[string]interface{}{
		"sourceIPv4Address": "10.1.2.3",
		"packetDeltaCount":  27,
	})
	if err != nil {
		t.Fatal(err)
	}

	b, err := mb.ToBytes()
	if err != nil {
		t.Fatal(err)
	}

	// 16 header + (4 + 12) template set + (4 + 4 + 8) data set
	if len(b) != 48 {
		t.Errorf("expected 48 byte message, got %d", len(b))
	}
	if got := mb.SequenceNumber(1); got != 1 {
		t.Errorf("expected sequence number 1 after one record, got %d", got)
	}

	dec := NewDecoder(templates, fields)
	msg, err := dec.Decode(ctx, bytes.NewBuffer(b))
	if err != nil {
		t.Fatal(err)
	}

	records := msg.DataRecords()
	if len(records) != 1 {
		t.Fatalf("expected 1 data record, got %d", len(records))
	}

	dict := records[0].NameDict()
	ip, ok := dict["sourceIPv4Address"].(net.IP)
	if !ok || ip.String() != "10.1.2.3" {
		t.Errorf("expected sourceIPv4Address 10.1.2.3, got %v", dict["sourceIPv4Address"])
	}
	if count, ok := dict["packetDeltaCount"].(uint64); !ok || count != 27 {
		t.Errorf("expected packetDeltaCount 27, got %v", dict["packetDeltaCount"])
	}

	keyed := records[0].KeyedDict()
	if count, ok := keyed[NewFieldKey(0, 2)].(uint64); !ok || count != 27 {
		t.Errorf("expected identity-keyed packetDeltaCount 27, got %v", keyed[NewFieldKey(0, 2)])
	}
}

func TestMessageBufferReducedLengthEncoding(t *testing.T) {
	ctx := context.Background()
	templates, fields, catalog, mb := newExportEnvironment(t)

	fs, err := catalog.FieldsForSpecs(ctx, "octetDeltaCount[4]")
	if err != nil {
		t.Fatal(err)
	}
	tmpl, err := NewTemplate(257, fs)
	if err != nil {
		t.Fatal(err)
	}

	if err := mb.BeginExport(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := mb.AddTemplate(ctx, tmpl, true); err != nil {
		t.Fatal(err)
	}
	if err := mb.ExportOrderedRecord(ctx, 257, []interface{}{42}); err != nil {
		t.Fatal(err)
	}

	b, err := mb.ToBytes()
	if err != nil {
		t.Fatal(err)
	}

	// 16 header + (4 + 8) template set + (4 + 4) data set: the counter
	// occupies 4 bytes on the wire, not its natural 8
	if len(b) != 36 {
		t.Fatalf("expected 36 byte message, got %d", len(b))
	}

	dec := NewDecoder(templates, fields)
	msg, err := dec.Decode(ctx, bytes.NewBuffer(b))
	if err != nil {
		t.Fatal(err)
	}
	records := msg.DataRecords()
	if len(records) != 1 {
		t.Fatalf("expected 1 data record, got %d", len(records))
	}
	if count, ok := records[0].NameDict()["octetDeltaCount"].(uint64); !ok || count != 42 {
		t.Errorf("expected octetDeltaCount 42, got %v", records[0].NameDict()["octetDeltaCount"])
	}

	t.Run("value out of reduced range fails to encode", func(t *testing.T) {
		if err := mb.BeginExport(ctx, 1); err != nil {
			t.Fatal(err)
		}
		err := mb.ExportOrderedRecord(ctx, 257, []interface{}{1 << 33})
		if err == nil {
			t.Fatal("expected a 2^33 octet count to fail 4 byte reduced-length encoding")
		}
	})
}

func TestMessageBufferVariableLengthString(t *testing.T) {
	ctx := context.Background()
	templates, fields, catalog, mb := newExportEnvironment(t)

	fs, err := catalog.FieldsForSpecs(ctx, "flowStartMilliseconds", "interfaceName")
	if err != nil {
		t.Fatal(err)
	}
	tmpl, err := NewTemplate(258, fs)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2013, 6, 21, 14, 0, 0, 0, time.UTC)
	name := "Grüezi, Y'all"

	if err := mb.BeginExport(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := mb.AddTemplate(ctx, tmpl, true); err != nil {
		t.Fatal(err)
	}
	err = mb.ExportNamedRecord(ctx, 258, map[string]interface{}{
		"flowStartMilliseconds": start,
		"interfaceName":         name,
	})
	if err != nil {
		t.Fatal(err)
	}

	b, err := mb.ToBytes()
	if err != nil {
		t.Fatal(err)
	}

	// 16 header + (4 + 12) template set + (4 + 8 + 1 + 14) data set
	if len(b) != 59 {
		t.Fatalf("expected 59 byte message, got %d", len(b))
	}
	// the varlen length prefix sits right after the 8 timestamp bytes and
	// holds the UTF-8 byte count of the string
	if b[44] != byte(len([]byte(name))) {
		t.Errorf("expected varlen prefix %d, got %d", len([]byte(name)), b[44])
	}

	dec := NewDecoder(templates, fields)
	msg, err := dec.Decode(ctx, bytes.NewBuffer(b))
	if err != nil {
		t.Fatal(err)
	}
	records := msg.DataRecords()
	if len(records) != 1 {
		t.Fatalf("expected 1 data record, got %d", len(records))
	}
	dict := records[0].NameDict()
	if got, ok := dict["interfaceName"].(string); !ok || got != name {
		t.Errorf("expected interfaceName %q, got %v", name, dict["interfaceName"])
	}
	if got, ok := dict["flowStartMilliseconds"].(time.Time); !ok || !got.Equal(start) {
		t.Errorf("expected flowStartMilliseconds %v, got %v", start, dict["flowStartMilliseconds"])
	}
}

func TestMessageBufferProjection(t *testing.T) {
	ctx := context.Background()
	templates, fields, catalog, mb := newExportEnvironment(t)

	fs, err := catalog.FieldsForSpecs(ctx, "sourceIPv4Address", "packetDeltaCount")
	if err != nil {
		t.Fatal(err)
	}
	tmpl, err := NewTemplate(256, fs)
	if err != nil {
		t.Fatal(err)
	}

	if err := mb.BeginExport(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := mb.AddTemplate(ctx, tmpl, true); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		err := mb.ExportOrderedRecord(ctx, 256, []interface{}{
			fmt.Sprintf("10.0.%d.%d", i/256, i%256),
			i,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	b, err := mb.ToBytes()
	if err != nil {
		t.Fatal(err)
	}
	if got := mb.SequenceNumber(1); got != 100 {
		t.Errorf("expected sequence number 100, got %d", got)
	}

	dec := NewDecoder(templates, fields)
	msg, err := dec.Decode(ctx, bytes.NewBuffer(b))
	if err != nil {
		t.Fatal(err)
	}

	tuples := msg.Tuples("packetDeltaCount")
	if len(tuples) != 100 {
		t.Fatalf("expected 100 tuples, got %d", len(tuples))
	}
	for i, tuple := range tuples {
		if len(tuple) != 1 {
			t.Fatalf("expected 1-tuples, got %d-tuple at index %d", len(tuple), i)
		}
		if count, ok := tuple[0].(uint64); !ok || count != uint64(i) {
			t.Errorf("expected tuple %d to hold %d, got %v", i, i, tuple[0])
		}
	}

	// a projection over an element no template carries accepts no record
	if tuples := msg.Tuples("octetDeltaCount"); len(tuples) != 0 {
		t.Errorf("expected no tuples for unsatisfiable projection, got %d", len(tuples))
	}

	t.Run("projection reuse across messages", func(t *testing.T) {
		proj := NewProjection("packetDeltaCount", "sourceIPv4Address")
		if got := len(proj.Tuples(msg)); got != 100 {
			t.Fatalf("expected 100 tuples from the first message, got %d", got)
		}

		// second message of the same stream: the template acceptance and
		// field indices computed above are reused, not re-evaluated
		if err := mb.BeginExport(ctx, 1); err != nil {
			t.Fatal(err)
		}
		if err := mb.ExportOrderedRecord(ctx, 256, []interface{}{"192.0.2.7", 1234}); err != nil {
			t.Fatal(err)
		}
		b2, err := mb.ToBytes()
		if err != nil {
			t.Fatal(err)
		}
		msg2, err := dec.Decode(ctx, bytes.NewBuffer(b2))
		if err != nil {
			t.Fatal(err)
		}

		tuples := proj.Tuples(msg2)
		if len(tuples) != 1 {
			t.Fatalf("expected 1 tuple from the second message, got %d", len(tuples))
		}
		if count, ok := tuples[0][0].(uint64); !ok || count != 1234 {
			t.Errorf("expected projected packetDeltaCount 1234, got %v", tuples[0][0])
		}
		if ip, ok := tuples[0][1].(net.IP); !ok || ip.String() != "192.0.2.7" {
			t.Errorf("expected projected sourceIPv4Address 192.0.2.7, got %v", tuples[0][1])
		}
	})
}

func TestMessageBufferEndOfMessage(t *testing.T) {
	ctx := context.Background()
	templates, fields, catalog, _ := newExportEnvironment(t)

	fs, err := catalog.FieldsForSpecs(ctx, "sourceIPv4Address", "packetDeltaCount")
	if err != nil {
		t.Fatal(err)
	}
	tmpl, err := NewTemplate(256, fs)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("overflow leaves message untouched", func(t *testing.T) {
		mb := NewMessageBuffer(templates, fields).WithMTU(80)
		if err := mb.BeginExport(ctx, 1); err != nil {
			t.Fatal(err)
		}
		if err := mb.AddTemplate(ctx, tmpl, true); err != nil {
			t.Fatal(err)
		}

		exported := 0
		for {
			err := mb.ExportOrderedRecord(ctx, 256, []interface{}{"192.0.2.1", exported})
			if errors.Is(err, ErrEndOfMessage) {
				break
			}
			if err != nil {
				t.Fatal(err)
			}
			exported++
		}

		// 16 header + 16 template set + 4 set header + 3 * 12 records
		if exported != 3 {
			t.Errorf("expected 3 records below an 80 byte MTU, got %d", exported)
		}
		lengthAfter := mb.Length()
		if lengthAfter != 72 {
			t.Errorf("expected 72 byte message after overflow, got %d", lengthAfter)
		}

		// the failed export must not have advanced the sequence counter
		if got := mb.SequenceNumber(1); got != uint32(exported) {
			t.Errorf("expected sequence number %d, got %d", exported, got)
		}

		b, err := mb.ToBytes()
		if err != nil {
			t.Fatal(err)
		}
		dec := NewDecoder(templates, fields)
		msg, err := dec.Decode(ctx, bytes.NewBuffer(b))
		if err != nil {
			t.Fatal(err)
		}
		if got := len(msg.DataRecords()); got != exported {
			t.Errorf("expected %d decoded records, got %d", exported, got)
		}
	})

	t.Run("exactly one record fits", func(t *testing.T) {
		mb := NewMessageBuffer(templates, fields).WithMTU(32)
		if err := mb.BeginExport(ctx, 2); err != nil {
			t.Fatal(err)
		}
		// store without exporting: the template set would not leave room
		// for the data set at this MTU
		if err := mb.AddTemplate(ctx, tmpl, false); err != nil {
			t.Fatal(err)
		}

		if err := mb.ExportOrderedRecord(ctx, 256, []interface{}{"192.0.2.1", 1}); err != nil {
			t.Fatalf("expected the first record to fit exactly, got %v", err)
		}
		if mb.Length() != 32 {
			t.Fatalf("expected message length 32, got %d", mb.Length())
		}

		err := mb.ExportOrderedRecord(ctx, 256, []interface{}{"192.0.2.2", 2})
		if !errors.Is(err, ErrEndOfMessage) {
			t.Fatalf("expected ErrEndOfMessage for the second record, got %v", err)
		}
		if mb.Length() != 32 {
			t.Errorf("expected message length unchanged at 32 after overflow, got %d", mb.Length())
		}
	})

	t.Run("Export flushes and retries once", func(t *testing.T) {
		mb := NewMessageBuffer(templates, fields).WithMTU(80)
		if err := mb.BeginExport(ctx, 3); err != nil {
			t.Fatal(err)
		}
		if err := mb.AddTemplate(ctx, tmpl, true); err != nil {
			t.Fatal(err)
		}

		var stream bytes.Buffer
		for i := 0; i < 10; i++ {
			rec, err := mb.buildRecord(ctx, 256, func(_ Field, idx int) (any, bool) {
				return []interface{}{"198.51.100.1", i}[idx], true
			})
			if err != nil {
				t.Fatal(err)
			}
			if err := mb.Export(ctx, &stream, rec); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := mb.WriteMessage(&stream); err != nil {
			t.Fatal(err)
		}

		if got := mb.SequenceNumber(3); got != 10 {
			t.Errorf("expected sequence number 10, got %d", got)
		}

		// every flushed message decodes cleanly off the shared stream
		dec := NewDecoder(templates, fields)
		decoded := 0
		for stream.Len() > 0 {
			msg, err := dec.Decode(ctx, &stream)
			if err != nil {
				t.Fatal(err)
			}
			decoded += len(msg.DataRecords())
		}
		if decoded != 10 {
			t.Errorf("expected 10 records across all messages, got %d", decoded)
		}
	})
}

func TestMessageBufferEncodeErrors(t *testing.T) {
	ctx := context.Background()
	_, _, catalog, mb := newExportEnvironment(t)

	fs, err := catalog.FieldsForSpecs(ctx, "packetDeltaCount")
	if err != nil {
		t.Fatal(err)
	}
	tmpl, err := NewTemplate(256, fs)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("export before BeginExport", func(t *testing.T) {
		if err := mb.AddTemplate(ctx, tmpl, true); err == nil {
			t.Error("expected AddTemplate before BeginExport to fail")
		}
	})

	t.Run("data set without template", func(t *testing.T) {
		if err := mb.BeginExport(ctx, 1); err != nil {
			t.Fatal(err)
		}
		err := mb.ExportEnsureSet(ctx, 400)
		if !errors.Is(err, ErrTemplateNotFound) {
			t.Errorf("expected ErrTemplateNotFound, got %v", err)
		}
	})

	t.Run("reserved set id", func(t *testing.T) {
		if err := mb.BeginExport(ctx, 1); err != nil {
			t.Fatal(err)
		}
		if err := mb.ExportEnsureSet(ctx, 7); err == nil {
			t.Error("expected reserved set id 7 to be rejected")
		}
	})

	t.Run("mtu below header size", func(t *testing.T) {
		small := NewMessageBuffer(NewDefaultEphemeralCache(), nil).WithMTU(12)
		if err := small.BeginExport(ctx, 1); err == nil {
			t.Error("expected BeginExport to reject an MTU below the header size")
		}
	})
}

func TestMessageBufferTemplateWithdrawal(t *testing.T) {
	ctx := context.Background()
	templates, fields, catalog, mb := newExportEnvironment(t)

	fs, err := catalog.FieldsForSpecs(ctx, "sourceIPv4Address", "packetDeltaCount")
	if err != nil {
		t.Fatal(err)
	}
	tmpl, err := NewTemplate(256, fs)
	if err != nil {
		t.Fatal(err)
	}

	if err := mb.BeginExport(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := mb.AddTemplate(ctx, tmpl, true); err != nil {
		t.Fatal(err)
	}
	b, err := mb.ToBytes()
	if err != nil {
		t.Fatal(err)
	}

	dec := NewDecoder(templates, fields)
	if _, err := dec.Decode(ctx, bytes.NewBuffer(b)); err != nil {
		t.Fatal(err)
	}
	if _, err := templates.Get(ctx, NewKey(1, 256)); err != nil {
		t.Fatalf("expected template 256 to be stored, got %v", err)
	}

	// a template record with field count 0 withdraws the template
	withdrawal := []byte{
		0x00, 0x0A, 0x00, 0x18, // version 10, length 24
		0x00, 0x00, 0x00, 0x00, // sequence number
		0x00, 0x00, 0x00, 0x00, // export time
		0x00, 0x00, 0x00, 0x01, // observation domain id 1
		0x00, 0x02, 0x00, 0x08, // set id 2, length 8
		0x01, 0x00, 0x00, 0x00, // template id 256, field count 0
	}
	if _, err := dec.Decode(ctx, bytes.NewBuffer(withdrawal)); err != nil {
		t.Fatal(err)
	}
	if _, err := templates.Get(ctx, NewKey(1, 256)); err == nil {
		t.Error("expected template 256 to be withdrawn")
	}

	// data sets referencing the withdrawn template are skipped, not fatal
	data := []byte{
		0x00, 0x0A, 0x00, 0x20, // version 10, length 32
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x01,
		0x01, 0x00, 0x00, 0x10, // set id 256, length 16
		0x0A, 0x01, 0x02, 0x03, // 10.1.2.3
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x1B, // packetDeltaCount 27
	}
	msg, err := dec.Decode(ctx, bytes.NewBuffer(data))
	if err != nil {
		t.Fatalf("expected unknown-template data set to be skipped, got %v", err)
	}
	if got := len(msg.DataRecords()); got != 0 {
		t.Errorf("expected no decoded records from a skipped set, got %d", got)
	}
}
