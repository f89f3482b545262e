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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ntpEpoch is the zero point of the 64-bit NTP timestamp format used by the
// dateTimeMicroseconds and dateTimeNanoseconds abstract data types.
var ntpEpoch time.Time = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// ntpFractionMicrosecondMask clears the lower 11 bits of the NTP fraction
// word, limiting it to microsecond resolution, RFC 7011, section 6.1.9.
const ntpFractionMicrosecondMask uint32 = 0xFFFFF800

// encodeNTP splits a timestamp into the NTP seconds and fraction-of-2^32
// words. The fraction is computed in integer nanoseconds to keep the error
// below one fraction unit.
func encodeNTP(v time.Time) (seconds, fraction uint32) {
	d := v.Sub(ntpEpoch)
	seconds = uint32(d / time.Second)
	rem := uint64(d % time.Second)
	fraction = uint32(rem << 32 / uint64(time.Second))
	return seconds, fraction
}

// decodeNTP is the inverse of encodeNTP.
func decodeNTP(seconds, fraction uint32) time.Time {
	nanos := uint64(fraction) * uint64(time.Second) >> 32
	return ntpEpoch.Add(time.Duration(seconds)*time.Second + time.Duration(nanos))
}

type DateTimeSeconds struct {
	value time.Time
}

func NewDateTimeSeconds() DataType {
	return &DateTimeSeconds{}
}

func (t *DateTimeSeconds) String() string {
	return fmt.Sprintf("%v", t.value)
}

func (*DateTimeSeconds) Type() string {
	return "dateTimeSeconds"
}

func (t *DateTimeSeconds) Value() interface{} {
	return t.value
}

func (t *DateTimeSeconds) SetValue(v any) DataType {
	b, ok := v.(time.Time)
	if !ok {
		panic(fmt.Errorf("%T cannot be asserted to %T", v, t.value))
	}
	t.value = b
	return t
}

func (t *DateTimeSeconds) Length() uint16 {
	return t.DefaultLength()
}

func (*DateTimeSeconds) DefaultLength() uint16 {
	return 4
}

func (t *DateTimeSeconds) Clone() DataType {
	return &DateTimeSeconds{value: t.value}
}

func (*DateTimeSeconds) WithLength(length uint16) DataTypeConstructor {
	return NewDateTimeSeconds
}

func (t *DateTimeSeconds) SetLength(length uint16) DataType {
	// time types are not reduced-length-encodable
	return t
}

func (*DateTimeSeconds) IsReducedLength() bool {
	return false
}

func (t *DateTimeSeconds) Decode(in io.Reader) (int, error) {
	b := make([]byte, t.Length())
	n, err := io.ReadFull(in, b)
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	t.value = time.Unix(int64(binary.BigEndian.Uint32(b)), 0).UTC()
	return n, nil
}

func (t *DateTimeSeconds) Encode(w io.Writer) (int, error) {
	b := make([]byte, t.Length())
	binary.BigEndian.PutUint32(b, uint32(t.value.Unix()))
	return w.Write(b)
}

func (t *DateTimeSeconds) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *DateTimeSeconds) UnmarshalJSON(in []byte) error {
	return json.Unmarshal(in, &t.value)
}

type DateTimeMilliseconds struct {
	value time.Time
}

func NewDateTimeMilliseconds() DataType {
	return &DateTimeMilliseconds{}
}

func (t *DateTimeMilliseconds) String() string {
	return fmt.Sprintf("%v", t.value)
}

func (*DateTimeMilliseconds) Type() string {
	return "dateTimeMilliseconds"
}

func (t *DateTimeMilliseconds) Value() interface{} {
	return t.value
}

func (t *DateTimeMilliseconds) SetValue(v any) DataType {
	b, ok := v.(time.Time)
	if !ok {
		panic(fmt.Errorf("%T cannot be asserted to %T", v, t.value))
	}
	t.value = b
	return t
}

func (t *DateTimeMilliseconds) Length() uint16 {
	return t.DefaultLength()
}

func (*DateTimeMilliseconds) DefaultLength() uint16 {
	return 8
}

func (t *DateTimeMilliseconds) Clone() DataType {
	return &DateTimeMilliseconds{value: t.value}
}

func (*DateTimeMilliseconds) WithLength(length uint16) DataTypeConstructor {
	return NewDateTimeMilliseconds
}

func (t *DateTimeMilliseconds) SetLength(length uint16) DataType {
	// time types are not reduced-length-encodable
	return t
}

func (*DateTimeMilliseconds) IsReducedLength() bool {
	return false
}

func (t *DateTimeMilliseconds) Decode(in io.Reader) (int, error) {
	b := make([]byte, t.Length())
	n, err := io.ReadFull(in, b)
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	t.value = time.UnixMilli(int64(binary.BigEndian.Uint64(b))).UTC()
	return n, nil
}

func (t *DateTimeMilliseconds) Encode(w io.Writer) (int, error) {
	b := make([]byte, t.Length())
	binary.BigEndian.PutUint64(b, uint64(t.value.UnixMilli()))
	return w.Write(b)
}

func (t *DateTimeMilliseconds) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *DateTimeMilliseconds) UnmarshalJSON(in []byte) error {
	return json.Unmarshal(in, &t.value)
}

type DateTimeMicroseconds struct {
	value time.Time
}

func NewDateTimeMicroseconds() DataType {
	return &DateTimeMicroseconds{}
}

func (t *DateTimeMicroseconds) String() string {
	return fmt.Sprintf("%v", t.value)
}

func (*DateTimeMicroseconds) Type() string {
	return "dateTimeMicroseconds"
}

func (t *DateTimeMicroseconds) Value() interface{} {
	return t.value
}

func (t *DateTimeMicroseconds) SetValue(v any) DataType {
	b, ok := v.(time.Time)
	if !ok {
		panic(fmt.Errorf("%T cannot be asserted to %T", v, t.value))
	}
	t.value = b
	return t
}

func (t *DateTimeMicroseconds) Length() uint16 {
	return t.DefaultLength()
}

func (*DateTimeMicroseconds) DefaultLength() uint16 {
	return 8
}

func (t *DateTimeMicroseconds) Clone() DataType {
	return &DateTimeMicroseconds{value: t.value}
}

func (*DateTimeMicroseconds) WithLength(length uint16) DataTypeConstructor {
	return NewDateTimeMicroseconds
}

func (t *DateTimeMicroseconds) SetLength(length uint16) DataType {
	// time types are not reduced-length-encodable
	return t
}

func (*DateTimeMicroseconds) IsReducedLength() bool {
	return false
}

func (t *DateTimeMicroseconds) Decode(in io.Reader) (int, error) {
	b := make([]byte, t.Length())
	n, err := io.ReadFull(in, b)
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	seconds := binary.BigEndian.Uint32(b[0:4])
	fraction := binary.BigEndian.Uint32(b[4:8]) & ntpFractionMicrosecondMask
	t.value = decodeNTP(seconds, fraction)
	return n, nil
}

func (t *DateTimeMicroseconds) Encode(w io.Writer) (int, error) {
	seconds, fraction := encodeNTP(t.value)
	b := make([]byte, 0, t.Length())
	b = binary.BigEndian.AppendUint32(b, seconds)
	b = binary.BigEndian.AppendUint32(b, fraction&ntpFractionMicrosecondMask)
	return w.Write(b)
}

func (t *DateTimeMicroseconds) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *DateTimeMicroseconds) UnmarshalJSON(in []byte) error {
	return json.Unmarshal(in, &t.value)
}

type DateTimeNanoseconds struct {
	value time.Time
}

func NewDateTimeNanoseconds() DataType {
	return &DateTimeNanoseconds{}
}

func (t *DateTimeNanoseconds) String() string {
	return fmt.Sprintf("%v", t.value)
}

func (*DateTimeNanoseconds) Type() string {
	return "dateTimeNanoseconds"
}

func (t *DateTimeNanoseconds) Value() interface{} {
	return t.value
}

func (t *DateTimeNanoseconds) SetValue(v any) DataType {
	b, ok := v.(time.Time)
	if !ok {
		panic(fmt.Errorf("%T cannot be asserted to %T", v, t.value))
	}
	t.value = b
	return t
}

func (t *DateTimeNanoseconds) Length() uint16 {
	return t.DefaultLength()
}

func (*DateTimeNanoseconds) DefaultLength() uint16 {
	return 8
}

func (t *DateTimeNanoseconds) Clone() DataType {
	return &DateTimeNanoseconds{value: t.value}
}

func (*DateTimeNanoseconds) WithLength(length uint16) DataTypeConstructor {
	return NewDateTimeNanoseconds
}

func (t *DateTimeNanoseconds) SetLength(length uint16) DataType {
	// time types are not reduced-length-encodable
	return t
}

func (*DateTimeNanoseconds) IsReducedLength() bool {
	return false
}

func (t *DateTimeNanoseconds) Decode(in io.Reader) (int, error) {
	b := make([]byte, t.Length())
	n, err := io.ReadFull(in, b)
	if err != nil {
		return n, fmt.Errorf("failed to read data in %T, %w", t, err)
	}
	t.value = decodeNTP(binary.BigEndian.Uint32(b[0:4]), binary.BigEndian.Uint32(b[4:8]))
	return n, nil
}

func (t *DateTimeNanoseconds) Encode(w io.Writer) (int, error) {
	seconds, fraction := encodeNTP(t.value)
	b := make([]byte, 0, t.Length())
	b = binary.BigEndian.AppendUint32(b, seconds)
	b = binary.BigEndian.AppendUint32(b, fraction)
	return w.Write(b)
}

func (t *DateTimeNanoseconds) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *DateTimeNanoseconds) UnmarshalJSON(in []byte) error {
	return json.Unmarshal(in, &t.value)
}

var _ DataTypeConstructor = NewDateTimeSeconds
var _ DataTypeConstructor = NewDateTimeMilliseconds
var _ DataTypeConstructor = NewDateTimeMicroseconds
var _ DataTypeConstructor = NewDateTimeNanoseconds

var _ DataType = &DateTimeSeconds{}
var _ DataType = &DateTimeMilliseconds{}
var _ DataType = &DateTimeMicroseconds{}
var _ DataType = &DateTimeNanoseconds{}
