package ipfix

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
)

// buildNetflowV9PDU assembles the raw bytes of a minimal NetFlow v9 PDU: one
// template defining a single packetDeltaCount field, and one data set with a
// single record of that template.
func buildNetflowV9PDU(t *testing.T, templateId uint16, sourceId uint32, value uint64) []byte {
	t.Helper()

	// template record: 4-byte record header + one 4-byte field spec
	templateRecord := make([]byte, 0, 8)
	templateRecord = binary.BigEndian.AppendUint16(templateRecord, templateId)
	templateRecord = binary.BigEndian.AppendUint16(templateRecord, 1) // field count
	templateRecord = binary.BigEndian.AppendUint16(templateRecord, 2) // packetDeltaCount id
	templateRecord = binary.BigEndian.AppendUint16(templateRecord, 8) // length

	templateSet := make([]byte, 0, 4+len(templateRecord))
	templateSet = binary.BigEndian.AppendUint16(templateSet, NFv9)
	templateSet = binary.BigEndian.AppendUint16(templateSet, uint16(4+len(templateRecord)))
	templateSet = append(templateSet, templateRecord...)

	dataRecord := make([]byte, 0, 8)
	dataRecord = binary.BigEndian.AppendUint64(dataRecord, value)

	dataSet := make([]byte, 0, 4+len(dataRecord))
	dataSet = binary.BigEndian.AppendUint16(dataSet, templateId)
	dataSet = binary.BigEndian.AppendUint16(dataSet, uint16(4+len(dataRecord)))
	dataSet = append(dataSet, dataRecord...)

	header := make([]byte, 0, 20)
	header = binary.BigEndian.AppendUint16(header, 9) // version
	header = binary.BigEndian.AppendUint16(header, 2) // count: 1 template record + 1 data record
	header = binary.BigEndian.AppendUint32(header, 1000)
	header = binary.BigEndian.AppendUint32(header, 1700000000)
	header = binary.BigEndian.AppendUint32(header, 1)
	header = binary.BigEndian.AppendUint32(header, sourceId)

	pdu := make([]byte, 0, len(header)+len(templateSet)+len(dataSet))
	pdu = append(pdu, header...)
	pdu = append(pdu, templateSet...)
	pdu = append(pdu, dataSet...)
	return pdu
}

func TestDecoder_DecodeNetflowV9(t *testing.T) {
	templateCache := NewDefaultEphemeralCache()
	fieldCache := newIPFIXFieldManager(templateCache)
	decoder := NewDecoder(templateCache, fieldCache)

	raw := buildNetflowV9PDU(t, 256, 7, 42)

	ctx := context.Background()
	pdu, err := decoder.DecodeNetflowV9(ctx, bytes.NewBuffer(raw))
	if err != nil {
		t.Fatalf("DecodeNetflowV9 failed: %v", err)
	}

	if pdu.Version != 9 {
		t.Errorf("expected version 9, got %d", pdu.Version)
	}
	if pdu.SourceId != 7 {
		t.Errorf("expected source id 7, got %d", pdu.SourceId)
	}
	if len(pdu.Sets) != 2 {
		t.Fatalf("expected 2 sets, got %d", len(pdu.Sets))
	}

	ts, ok := pdu.Sets[0].Set.(*TemplateSet)
	if !ok {
		t.Fatalf("expected first set to be a TemplateSet, got %T", pdu.Sets[0].Set)
	}
	if len(ts.Records) != 1 || ts.Records[0].TemplateId != 256 {
		t.Fatalf("unexpected template set contents: %+v", ts.Records)
	}

	ds, ok := pdu.Sets[1].Set.(*DataSet)
	if !ok {
		t.Fatalf("expected second set to be a DataSet, got %T", pdu.Sets[1].Set)
	}
	if len(ds.Records) != 1 {
		t.Fatalf("expected 1 data record, got %d", len(ds.Records))
	}
	got := ds.Records[0].Fields[0].Value().Value()
	if got != uint64(42) {
		t.Errorf("expected decoded value 42, got %v", got)
	}

	// the template learned from this PDU must be addressable under SourceId,
	// the netflow v9 analog of an IPFIX observation domain id.
	tmpl, err := templateCache.Get(ctx, TemplateKey{ObservationDomainId: 7, TemplateId: 256})
	if err != nil {
		t.Fatalf("expected template to be learned under source id 7: %v", err)
	}
	if tmpl.TemplateId != 256 {
		t.Errorf("expected learned template id 256, got %d", tmpl.TemplateId)
	}
}

func TestNetflowV9Header_BaseTime(t *testing.T) {
	h := NetflowV9Header{
		UnixSecs:  1700000010,
		SysUpTime: 10000, // 10s of uptime
	}
	want := int64(1700000000)
	if got := h.BaseTime().Unix(); got != want {
		t.Errorf("expected basetime %d, got %d", want, got)
	}
}
