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

/*
Package ipfix encodes and decodes IPFIX (RFC 7011) message streams, plus
NetFlow v9 as a closely related sibling wire format.

# Overview

The package is built from four cooperating pieces:

  - A type codec: every IPFIX abstract data type (unsigned/signed integers
    of all widths, floats, booleans, addresses, strings, octet arrays and
    the four dateTime variants) implements the DataType interface, including
    reduced-length encodings for the numeric types and the 1-or-3-byte
    length framing for variable-length values.
  - An information element registry: a Catalog resolves textual IE specs of
    the form name(pen/num)<type>[length] against a FieldCache, seeds it from
    the bundled IANA and RFC 5103 (reverse IE) registries, and synthesizes
    octetArray placeholders for information elements first seen on the wire.
  - A template model: Template couples an id with an ordered field list,
    constructed either explicitly for the export path (NewTemplate,
    NewOptionsTemplate) or learned from template sets during decode.
  - Message buffers for both directions: Decoder parses messages into sets
    and records, learning templates per observation domain as it goes, and
    MessageBuffer assembles messages record by record below a configurable
    MTU, tracking per-domain sequence numbers across flushes.

Decoded records are accessible in template order, as name-keyed or
identity-keyed maps, or projected onto a subset of elements via Projection.

# Statefulness

IPFIX detaches data semantics from the data itself: data sets are only
decodable once the template with the matching id has been seen on the same
observation domain. Template and field state therefore live behind the
TemplateCache and FieldCache interfaces, injected into Decoder and
MessageBuffer at construction. Callers needing concurrency instantiate one
Decoder or MessageBuffer per goroutine and may share the caches. Data sets
whose template is still unknown are skipped with a warning; callers that
need to recover such records queue the raw message and retry after the
template arrives.
*/
package ipfix
