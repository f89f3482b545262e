package ipfix

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"
)

func TestMessage_String(t *testing.T) {

	helloWorldField := &FixedLengthField{
		id:          5,
		pen:         12345,
		constructor: NewString,
		name:        "fixedString",
		value: &String{
			length: 11,
			value:  "hello world",
		},
	}

	msg := Message{
		Version:             10,
		Length:              16,
		SequenceNumber:      1234,
		ExportTime:          uint32(time.Now().Unix()),
		ObservationDomainId: 0,
		Sets: []Set{
			{
				SetHeader: SetHeader{
					Id:     2,
					Length: 8,
				},
				Kind: KindTemplateSet,
				Set: &TemplateSet{
					Records: []TemplateRecord{
						{
							FieldCount: 2,
							TemplateId: 1000,
							Fields: []Field{
								helloWorldField,
								&VariableLengthField{
									id:          6,
									name:        "interfaceDescription",
									constructor: NewString,
									value: &String{
										length: 13,
										value:  "Grüezi, Y'all",
									},
								},
							},
						},
					},
				},
			},
		},
	}
	t.Log(msg.String())
	err := recover()
	if err != nil {
		t.Error(err)
	}
}

// buildValidMessage exports one template and a handful of records so the
// mutation subtests below have a structurally sound baseline.
func buildValidMessage(t *testing.T) []byte {
	t.Helper()
	ctx := context.Background()

	templates := NewDefaultEphemeralCache()
	fields := NewEphemeralFieldCache(templates)
	catalog := NewCatalog(fields)
	if err := catalog.UseIANADefault(ctx); err != nil {
		t.Fatal(err)
	}

	fs, err := catalog.FieldsForSpecs(ctx, "sourceIPv4Address", "packetDeltaCount")
	if err != nil {
		t.Fatal(err)
	}
	tmpl, err := NewTemplate(256, fs)
	if err != nil {
		t.Fatal(err)
	}

	mb := NewMessageBuffer(templates, fields)
	if err := mb.BeginExport(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := mb.AddTemplate(ctx, tmpl, true); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if err := mb.ExportOrderedRecord(ctx, 256, []interface{}{"10.0.0.1", i}); err != nil {
			t.Fatal(err)
		}
	}
	b, err := mb.ToBytes()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDecoderRejectsMalformedMessages(t *testing.T) {
	ctx := context.Background()
	valid := buildValidMessage(t)

	newDecoder := func(t *testing.T) *Decoder {
		t.Helper()
		templates := NewDefaultEphemeralCache()
		fields := NewEphemeralFieldCache(templates)
		catalog := NewCatalog(fields)
		if err := catalog.UseIANADefault(ctx); err != nil {
			t.Fatal(err)
		}
		return NewDecoder(templates, fields)
	}

	t.Run("valid baseline decodes", func(t *testing.T) {
		msg, err := newDecoder(t).Decode(ctx, bytes.NewBuffer(append([]byte(nil), valid...)))
		if err != nil {
			t.Fatal(err)
		}
		if got := len(msg.DataRecords()); got != 4 {
			t.Fatalf("expected 4 records in the baseline message, got %d", got)
		}
	})

	mutations := []struct {
		name   string
		mutate func(b []byte) []byte
	}{
		{
			name: "wrong version",
			mutate: func(b []byte) []byte {
				binary.BigEndian.PutUint16(b[0:2], 1)
				return b
			},
		},
		{
			name: "declared length below minimum",
			mutate: func(b []byte) []byte {
				binary.BigEndian.PutUint16(b[2:4], 17)
				return b
			},
		},
		{
			name: "set length below set header size",
			mutate: func(b []byte) []byte {
				binary.BigEndian.PutUint16(b[18:20], 1)
				return b
			},
		},
		{
			name: "set length overflows message",
			mutate: func(b []byte) []byte {
				binary.BigEndian.PutUint16(b[18:20], 65535)
				return b
			},
		},
		{
			name: "truncated header",
			mutate: func(b []byte) []byte {
				return b[:12]
			},
		},
	}

	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.mutate(append([]byte(nil), valid...))
			if _, err := newDecoder(t).Decode(ctx, bytes.NewBuffer(b)); err == nil {
				t.Error("expected decode to fail")
			}
		})
	}
}
