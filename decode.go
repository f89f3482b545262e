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
	"time"
)

// Decoder is instantiated with a fieldManager and a templateManager
// such that it can decode IPFIX packets into Records containing fields
// and additionally learn new fields and templates.
type Decoder struct {
	// fieldManager stores and manages field definitions for IEs to decode into. It is injected into the decoder at creation.
	// Template fields are resolved through it; information elements it does not know are decoded as octetArray placeholders.
	fieldManager FieldCache

	// templateManager stores and manages templates. It is injected into the decoder at creation
	templateManager TemplateCache

	completionHook completionHook

	metrics *decoderMetrics
}

type completionHook func(*decoderMetrics)

type decoderMetrics struct {
	TotalLength    int64 `json:"total_length,omitempty"`
	DecodedSets    int64 `json:"decoded_messages,omitempty"`
	DecodedRecords int64 `json:"decoded_records,omitempty"`
	DroppedRecords int64 `json:"dropped_records,omitempty"`
}

// NewDecoder creates a new Decoder for a given template cache and field manager
func NewDecoder(templates TemplateCache, fields FieldCache) *Decoder {
	d := &Decoder{
		fieldManager:    fields,
		templateManager: templates,
		metrics:         &decoderMetrics{},
	}

	d.initMetrics()

	return d
}

func (d *Decoder) WithCompletionHook(hook func(*decoderMetrics)) *Decoder {
	d.completionHook = hook
	return d
}

// Decode takes payload as a buffer and consumes it to construct an IPFIX packet
// containing records containing decoded fields.
func (d *Decoder) Decode(ctx context.Context, payload *bytes.Buffer) (msg *Message, err error) {
	decoderStart := time.Now()

	// update metrics at the end of decoding depending on the outcome
	defer func() {
		DurationMicroseconds.Observe(float64(time.Since(decoderStart).Nanoseconds()) / 1000) // use nanoseconds for higher precision and then convert it back to microseconds
		PacketsTotal.Inc()
		if err != nil {
			ErrorsTotal.Inc()
		}
	}()

	defer func() {
		if d.completionHook != nil {
			d.completionHook(d.metrics)
		}
		d.resetMetrics()
	}()

	if d.templateManager == nil {
		return nil, errors.New("used decoder before template cache was initialized")
	}

	logger := FromContext(ctx)

	msg = &Message{}
	n, err := msg.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to read IPFIX packet header, %w", err)
	}
	d.metrics.TotalLength += int64(n) // IPFIX header length

	// the declared length covers the 16 header bytes and at least one set
	// header; anything shorter cannot hold a single set
	if msg.Length < 20 {
		return nil, fmt.Errorf("declared message length %d is shorter than a message with one set", msg.Length)
	}
	if rem := int(msg.Length) - n; rem > payload.Len() {
		return nil, fmt.Errorf("message truncated, declared %d bytes but only %d remain", msg.Length, payload.Len()+n)
	}

	// bound set decoding to the declared message length, leaving any trailing
	// bytes (e.g. the next message in a stream) untouched in payload
	body := bytes.NewBuffer(payload.Next(int(msg.Length) - n))

	for i := 1; body.Len() > 0; i++ {
		// set decoding loop
		h := SetHeader{}
		_, err := h.Decode(body)
		if err != nil {
			return nil, fmt.Errorf("failed to read SetHeader, %w", err)
		}
		d.metrics.TotalLength += 4
		// offset is the number of bytes in the record's payload without the
		// 4 header (2x2 bytes, templateId and set length) bytes included
		// by the protocol in the length field; binary.Size(h) captures exactly
		// that inclusion
		offset := int(h.Length) - binary.Size(h)
		if offset < 0 {
			return nil, errors.New("malformed IPFIX packet")
		}
		if offset > body.Len() {
			return nil, fmt.Errorf("set %d with declared length %d overflows its message", i, h.Length)
		}
		d.metrics.TotalLength += int64(offset)

		var set Set

		// create a fresh buffer with only the bytes of the set contents
		// TODO: this does some copying, and we currently cannot ensure that
		// the safety constraints of the slices are kept
		tr := bytes.NewBuffer(body.Next(offset))

		if h.Id == IPFIX {
			// IPFIX template set
			ts := TemplateSet{
				fieldCache:    d.fieldManager,
				templateCache: d.templateManager,
			}
			_, err = ts.Decode(tr)
			if err != nil {
				return msg, fmt.Errorf("failed to decode template set at index %d, %w", i, err)
			}
			d.metrics.DecodedRecords += int64(len(ts.Records))

			set = Set{
				SetHeader: h,
				Kind:      KindTemplateRecord,
				Set:       &ts,
			}

			for _, record := range ts.Records {
				r := record // TODO: waiting on https://go.dev/blog/loopvar-preview
				key := TemplateKey{
					ObservationDomainId: msg.ObservationDomainId,
					TemplateId:          record.TemplateId,
				}
				if record.FieldCount == 0 {
					// withdrawal, RFC 7011, section 8.1
					if err := d.templateManager.Delete(ctx, key); err != nil {
						logger.V(1).Info("withdrawal for unknown template",
							"templateId", record.TemplateId, "observationDomainId", msg.ObservationDomainId)
					}
					continue
				}
				d.templateManager.Add(ctx, key, &Template{
					TemplateMetadata: &TemplateMetadata{
						TemplateId:          record.TemplateId,
						ObservationDomainId: msg.ObservationDomainId,
						CreationTimestamp:   time.Now(),
					},
					Record: &r,
				})
			}
		} else if h.Id == IPFIXOptions {
			ots := &OptionsTemplateSet{
				templateCache: d.templateManager,
				fieldCache:    d.fieldManager,
			}

			// ipfix options template set
			_, err := ots.Decode(tr)
			if err != nil {
				return msg, fmt.Errorf("failed to decode options template set %d, %w", i, err)
			}
			d.metrics.DecodedRecords += int64(len(ots.Records))

			set = Set{
				SetHeader: h,
				Kind:      KindOptionsTemplateRecord,
				Set:       ots,
			}

			for _, record := range ots.Records {
				r := record // TODO: waiting on https://go.dev/blog/loopvar-preview
				key := TemplateKey{
					ObservationDomainId: msg.ObservationDomainId,
					TemplateId:          record.TemplateId,
				}
				if record.FieldCount == 0 {
					if err := d.templateManager.Delete(ctx, key); err != nil {
						logger.V(1).Info("withdrawal for unknown options template",
							"templateId", record.TemplateId, "observationDomainId", msg.ObservationDomainId)
					}
					continue
				}
				d.templateManager.Add(ctx, key, &Template{
					TemplateMetadata: &TemplateMetadata{
						TemplateId:          record.TemplateId,
						ObservationDomainId: msg.ObservationDomainId,
						CreationTimestamp:   time.Now(),
					},
					Record: &r,
				})
			}
		} else if h.Id >= 256 {
			// Ids lower than 256 are reserved and not to be used for template definition
			ds := &DataSet{}

			template, err := d.templateManager.Get(ctx, TemplateKey{
				ObservationDomainId: msg.ObservationDomainId,
				TemplateId:          h.Id,
			})
			if err != nil {
				// data sets whose template has not been seen on this
				// observation domain are skipped, not fatal; the bytes were
				// already consumed above
				logger.Info("skipping data set with unknown template",
					"templateId", h.Id, "observationDomainId", msg.ObservationDomainId)
				d.metrics.DroppedRecords++
				DroppedRecords.WithLabelValues(KindDataRecord).Inc()
				continue
			}

			_, err = ds.With(template).Decode(tr)
			if err != nil {
				return msg, err
			}

			set = Set{
				SetHeader: h,
				Kind:      KindDataRecord,
				Set:       ds,
			}
			d.metrics.DecodedRecords += int64(len(ds.Records))
		} else {
			// reserved set ids other than the template set ids are skipped
			// with a warning
			logger.Info("skipping set with reserved id", "setId", h.Id)
			continue
		}

		d.metrics.DecodedSets++

		DecodedSets.WithLabelValues(set.Kind).Inc()
		DecodedRecords.WithLabelValues(set.Kind).Add(float64(d.metrics.DecodedRecords))
		DroppedRecords.WithLabelValues(set.Kind).Add(float64(d.metrics.DroppedRecords))

		msg.Sets = append(msg.Sets, set)
	}

	return
}

func (d *Decoder) initMetrics() {
	// set this so that we don't get too many empty data points in prometheus
	PacketsTotal.Add(0)
	ErrorsTotal.Add(0)
	DurationMicroseconds.Observe(0)
	for _, kind := range []string{KindDataRecord, KindTemplateRecord, KindOptionsTemplateRecord} {
		DecodedSets.WithLabelValues(kind).Add(0)
		DecodedRecords.WithLabelValues(kind).Add(0)
		DroppedRecords.WithLabelValues(kind).Add(0)
	}
}

func (d *Decoder) resetMetrics() {
	d.metrics = &decoderMetrics{
		TotalLength:    0,
		DecodedSets:    0,
		DecodedRecords: 0,
		DroppedRecords: 0,
	}
}
