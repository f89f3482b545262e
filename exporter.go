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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	// messageHeaderLength is the fixed size of the IPFIX message header,
	// RFC 7011, section 3.1.
	messageHeaderLength = 16

	// setHeaderLength is the fixed size of a set header, RFC 7011, section 3.3.2.
	setHeaderLength = 4

	// maxMessageLength is the largest value the message header's 16-bit
	// length field can carry, and thereby the hard upper bound for any MTU.
	maxMessageLength = 0xFFFF

	// DefaultMTU is the largest message an exporter produces unless
	// configured otherwise: the maximum IPv4 UDP payload. Exporters feeding
	// plain Ethernet-sized datagrams typically lower this to ~1420 bytes.
	DefaultMTU = 65507
)

// MessageBuffer is the write-side counterpart of Decoder: it assembles IPFIX
// messages record by record, keeping the current message below a configured
// MTU, and tracks per-observation-domain sequence numbers across messages.
//
// A MessageBuffer is driven in message cycles: BeginExport opens a message
// for an observation domain, AddTemplate/ExportTemplate announce templates,
// ExportRecord (or the named/keyed/ordered conveniences) append data records,
// and ToBytes or WriteMessage close and emit the message. When an export
// would push the message past the MTU, it fails with ErrEndOfMessage and
// leaves the buffer exactly as it was; the caller flushes and retries.
// Export implements that retry once, for callers streaming to a writer.
//
// The buffer reuses its backing array across message cycles and is not safe
// for concurrent use; callers needing concurrency instantiate one
// MessageBuffer per goroutine, sharing caches where desired.
type MessageBuffer struct {
	templateManager TemplateCache
	fieldManager    FieldCache

	mtu int

	buf     []byte
	scratch bytes.Buffer

	observationDomainId uint32

	exportTime      time.Time
	explicitTime    bool
	sequenceNumbers map[uint32]uint32

	// headerSequence is the sequence number latched by BeginExport and
	// written into the message header on flush: the count of data records
	// exported on this observation domain before this message.
	headerSequence uint32

	// setStart is the offset of the currently open set's header, or -1 when
	// no set is open. currentSetId is only meaningful while setStart >= 0.
	setStart     int
	currentSetId uint16

	exporting bool
}

// NewMessageBuffer creates a MessageBuffer exporting templates into, and
// resolving them from, the given caches.
func NewMessageBuffer(templates TemplateCache, fields FieldCache) *MessageBuffer {
	return &MessageBuffer{
		templateManager: templates,
		fieldManager:    fields,
		mtu:             DefaultMTU,
		buf:             make([]byte, 0, maxMessageLength),
		sequenceNumbers: make(map[uint32]uint32),
		setStart:        -1,
	}
}

// WithMTU bounds exported messages to at most mtu bytes. Values above the
// 16-bit message length limit are capped to it.
func (m *MessageBuffer) WithMTU(mtu int) *MessageBuffer {
	if mtu > maxMessageLength {
		mtu = maxMessageLength
	}
	m.mtu = mtu
	return m
}

// MTU returns the configured maximum message size.
func (m *MessageBuffer) MTU() int {
	return m.mtu
}

// SetExportTime pins the export time stamped into flushed messages. Without
// an explicit time, each flush stamps the wall clock at flush time.
func (m *MessageBuffer) SetExportTime(t time.Time) {
	m.exportTime = t
	m.explicitTime = true
}

// ExportTime returns the explicitly set export time, or the zero time when
// flushes stamp the wall clock.
func (m *MessageBuffer) ExportTime() time.Time {
	return m.exportTime
}

// SequenceNumber returns the number of data records exported so far for the
// given observation domain, i.e. the sequence number the next BeginExport
// for that domain will latch into its message header.
func (m *MessageBuffer) SequenceNumber(observationDomainId uint32) uint32 {
	return m.sequenceNumbers[observationDomainId]
}

// BeginExport opens a new message for the given observation domain,
// discarding any unflushed content of the previous cycle. The template store
// carries over; templates only need to be added once per MessageBuffer.
func (m *MessageBuffer) BeginExport(ctx context.Context, observationDomainId uint32) error {
	if m.templateManager == nil {
		return errors.New("used message buffer before template cache was initialized")
	}
	if m.mtu < messageHeaderLength+setHeaderLength {
		return fmt.Errorf("mtu %d cannot hold a message header and one set header", m.mtu)
	}

	m.buf = m.buf[:messageHeaderLength]
	for i := range m.buf {
		m.buf[i] = 0
	}
	m.observationDomainId = observationDomainId
	m.headerSequence = m.sequenceNumbers[observationDomainId]
	m.setStart = -1
	m.exporting = true
	return nil
}

// AddTemplate stores t for the current observation domain and, when export
// is set, immediately writes it into the current message. Stored templates
// survive message boundaries; data records may reference them in any later
// message of the same domain.
func (m *MessageBuffer) AddTemplate(ctx context.Context, t *Template, export bool) error {
	if !m.exporting {
		return errors.New("AddTemplate before BeginExport")
	}
	tid := t.TemplateId
	if tid < 256 {
		return fmt.Errorf("template id %d is reserved", tid)
	}
	if err := m.templateManager.Add(ctx, NewKey(m.observationDomainId, tid), t); err != nil {
		return err
	}
	if export {
		return m.ExportTemplate(ctx, tid)
	}
	return nil
}

// DeleteTemplate removes a template from the store. It does not emit a
// withdrawal record; collectors on unreliable transports age templates out
// themselves (see TemplateCacheWithTimeout).
func (m *MessageBuffer) DeleteTemplate(ctx context.Context, tid uint16) error {
	return m.templateManager.Delete(ctx, NewKey(m.observationDomainId, tid))
}

// ExportTemplate writes the stored template tid into the current message,
// inside a set with the template kind's native id (2 for data templates, 3
// for options templates). Returns ErrEndOfMessage when the template record
// does not fit into the remaining MTU budget.
func (m *MessageBuffer) ExportTemplate(ctx context.Context, tid uint16) error {
	if !m.exporting {
		return errors.New("ExportTemplate before BeginExport")
	}
	t, err := m.templateManager.Get(ctx, NewKey(m.observationDomainId, tid))
	if err != nil {
		return TemplateNotFound(m.observationDomainId, tid)
	}
	sid, err := t.setId()
	if err != nil {
		return err
	}
	start, prevSetStart, prevSetId := len(m.buf), m.setStart, m.currentSetId
	if err := m.ExportEnsureSet(ctx, sid); err != nil {
		return err
	}

	m.scratch.Reset()
	if _, err := t.Record.Encode(&m.scratch); err != nil {
		return err
	}
	if len(m.buf)+m.scratch.Len() > m.mtu {
		// drop a set header opened above so the message is left as it was
		m.buf, m.setStart, m.currentSetId = m.buf[:start], prevSetStart, prevSetId
		return ErrEndOfMessage
	}
	m.buf = append(m.buf, m.scratch.Bytes()...)
	return nil
}

// ExportEnsureSet makes sid the currently open set, closing the previous set
// if one is open under a different id. For data set ids (>= 256) the
// corresponding template must already be stored, and the set header plus one
// minimum-length record must fit below the MTU; otherwise ErrEndOfMessage
// asks the caller to flush first.
func (m *MessageBuffer) ExportEnsureSet(ctx context.Context, sid uint16) error {
	if !m.exporting {
		return errors.New("ExportEnsureSet before BeginExport")
	}
	if m.setStart >= 0 && m.currentSetId == sid {
		return nil
	}
	m.closeSet()

	minRecord := 0
	switch {
	case sid == IPFIX || sid == IPFIXOptions:
		// template sets check their fit per record in ExportTemplate
	case sid >= 256:
		t, err := m.templateManager.Get(ctx, NewKey(m.observationDomainId, sid))
		if err != nil {
			return TemplateNotFound(m.observationDomainId, sid)
		}
		minRecord = t.minRecordLength()
	default:
		return fmt.Errorf("set id %d is reserved and cannot be exported", sid)
	}

	if len(m.buf)+setHeaderLength+minRecord > m.mtu {
		return ErrEndOfMessage
	}

	m.setStart = len(m.buf)
	m.currentSetId = sid
	m.buf = binary.BigEndian.AppendUint16(m.buf, sid)
	m.buf = binary.BigEndian.AppendUint16(m.buf, 0) // length, patched by closeSet
	return nil
}

// closeSet patches the open set's length field and marks no set as open.
func (m *MessageBuffer) closeSet() {
	if m.setStart < 0 {
		return
	}
	binary.BigEndian.PutUint16(m.buf[m.setStart+2:m.setStart+4], uint16(len(m.buf)-m.setStart))
	m.setStart = -1
}

// ExportRecord appends one data record to the current message, opening the
// record's data set if necessary. On ErrEndOfMessage the buffer is unchanged:
// the caller flushes the message, begins a new one and retries.
//
// Every successfully exported record advances the observation domain's
// sequence counter by one.
func (m *MessageBuffer) ExportRecord(ctx context.Context, rec *DataRecord) error {
	if !m.exporting {
		return errors.New("ExportRecord before BeginExport")
	}
	if rec.TemplateId < 256 {
		return fmt.Errorf("data record references reserved template id %d", rec.TemplateId)
	}
	start, prevSetStart, prevSetId := len(m.buf), m.setStart, m.currentSetId
	if err := m.ExportEnsureSet(ctx, rec.TemplateId); err != nil {
		return err
	}

	m.scratch.Reset()
	if _, err := rec.Encode(&m.scratch); err != nil {
		return err
	}
	if len(m.buf)+m.scratch.Len() > m.mtu {
		// drop a set header opened above so the message is left as it was
		m.buf, m.setStart, m.currentSetId = m.buf[:start], prevSetStart, prevSetId
		return ErrEndOfMessage
	}
	m.buf = append(m.buf, m.scratch.Bytes()...)
	m.sequenceNumbers[m.observationDomainId]++
	return nil
}

// Export appends rec, transparently flushing the current message to w and
// opening a new one when the record does not fit. This is the one-retry
// convenience described by the protocol's export loop; it fails if the
// record cannot fit even into an empty message.
func (m *MessageBuffer) Export(ctx context.Context, w io.Writer, rec *DataRecord) error {
	err := m.ExportRecord(ctx, rec)
	if !errors.Is(err, ErrEndOfMessage) {
		return err
	}
	if _, err := m.WriteMessage(w); err != nil {
		return err
	}
	if err := m.BeginExport(ctx, m.observationDomainId); err != nil {
		return err
	}
	return m.ExportRecord(ctx, rec)
}

// buildRecord clones the stored template's fields and fills each from lookup,
// yielding a record ready for ExportRecord.
func (m *MessageBuffer) buildRecord(ctx context.Context, tid uint16, lookup func(f Field, idx int) (any, bool)) (*DataRecord, error) {
	t, err := m.templateManager.Get(ctx, NewKey(m.observationDomainId, tid))
	if err != nil {
		return nil, TemplateNotFound(m.observationDomainId, tid)
	}
	tfs := t.Fields()
	fields := make([]Field, 0, len(tfs))
	for idx, tf := range tfs {
		f := tf.Clone()
		v, ok := lookup(f, idx)
		if !ok {
			return nil, fmt.Errorf("missing value for field %s (%d/%d) of template %d", f.Name(), f.PEN(), f.Id(), tid)
		}
		fields = append(fields, f.SetValue(v))
	}
	return &DataRecord{
		TemplateId: tid,
		FieldCount: uint16(len(fields)),
		Fields:     fields,
		template:   t,
	}, nil
}

// ExportOrderedRecord exports values given in template order, the canonical
// record shape.
func (m *MessageBuffer) ExportOrderedRecord(ctx context.Context, tid uint16, values []any) error {
	rec, err := m.buildRecord(ctx, tid, func(_ Field, idx int) (any, bool) {
		if idx < len(values) {
			return values[idx], true
		}
		return nil, false
	})
	if err != nil {
		return err
	}
	return m.ExportRecord(ctx, rec)
}

// ExportNamedRecord exports a record keyed by information element name.
// Every field of the template must be present in values.
func (m *MessageBuffer) ExportNamedRecord(ctx context.Context, tid uint16, values map[string]any) error {
	rec, err := m.buildRecord(ctx, tid, func(f Field, _ int) (any, bool) {
		v, ok := values[f.Name()]
		return v, ok
	})
	if err != nil {
		return err
	}
	return m.ExportRecord(ctx, rec)
}

// ExportKeyedRecord exports a record keyed by information element identity,
// i.e. (enterprise number, element id). This shape survives name collisions
// between enterprise-specific registries.
func (m *MessageBuffer) ExportKeyedRecord(ctx context.Context, tid uint16, values map[FieldKey]any) error {
	rec, err := m.buildRecord(ctx, tid, func(f Field, _ int) (any, bool) {
		v, ok := values[NewFieldKey(f.PEN(), f.Id())]
		return v, ok
	})
	if err != nil {
		return err
	}
	return m.ExportRecord(ctx, rec)
}

// ToBytes closes the current set, stamps the message header and returns the
// finished message. The buffer must be re-armed with BeginExport before
// further exports; the template store and sequence counters carry over.
func (m *MessageBuffer) ToBytes() ([]byte, error) {
	if !m.exporting {
		return nil, errors.New("ToBytes before BeginExport")
	}
	m.closeSet()

	exportTime := m.exportTime
	if !m.explicitTime {
		exportTime = time.Now()
	}

	binary.BigEndian.PutUint16(m.buf[0:2], 10)
	binary.BigEndian.PutUint16(m.buf[2:4], uint16(len(m.buf)))
	binary.BigEndian.PutUint32(m.buf[4:8], m.headerSequence)
	binary.BigEndian.PutUint32(m.buf[8:12], uint32(exportTime.Unix()))
	binary.BigEndian.PutUint32(m.buf[12:16], m.observationDomainId)

	out := make([]byte, len(m.buf))
	copy(out, m.buf)
	m.exporting = false
	return out, nil
}

// WriteMessage flushes the current message to w, see ToBytes.
func (m *MessageBuffer) WriteMessage(w io.Writer) (int, error) {
	b, err := m.ToBytes()
	if err != nil {
		return 0, err
	}
	return w.Write(b)
}

// Length returns the current logical message length in bytes, header
// included.
func (m *MessageBuffer) Length() int {
	return len(m.buf)
}
