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
	"bytes"
	"embed"
	"fmt"
	"strings"

	"github.com/flowlens/ipfix/iana/semantics"
	"github.com/flowlens/ipfix/iana/status"
)

//go:embed hack/iana.iespec hack/rfc5103.iespec
var specFiles embed.FS

// penMask is the high bit of an encoded field id that signals the field is
// enterprise-specific (i.e. followed by a 4-byte Private Enterprise Number).
const penMask = uint16(0x8000)

var (
	ianaIpfixIEs    map[uint16]*InformationElement
	rfc5103IpfixIEs map[uint16]*InformationElement
)

func init() {
	initGlobalIANARegistry()
	initGlobalRFC5103Registry()
}

func initGlobalIANARegistry() {
	ianaIpfixIEs = mustLoadIESpecFile("hack/iana.iespec")
}

func initGlobalRFC5103Registry() {
	rfc5103IpfixIEs = mustLoadIESpecFile("hack/rfc5103.iespec")
}

// IANA returns the set of well-known information elements from the IANA
// IPFIX registry bundled with this package, keyed by element ID.
func IANA() map[uint16]*InformationElement {
	if len(ianaIpfixIEs) == 0 {
		initGlobalIANARegistry()
	}
	return ianaIpfixIEs
}

// iana is a lower-case alias of IANA, kept for internal callers that predate
// the exported accessor.
func iana() map[uint16]*InformationElement {
	return IANA()
}

// RFC5103 returns the bundled set of RFC 5103 reverse information elements,
// registered under ReversePEN, keyed by the corresponding forward element ID.
func RFC5103() map[uint16]*InformationElement {
	if len(rfc5103IpfixIEs) == 0 {
		initGlobalRFC5103Registry()
	}
	return rfc5103IpfixIEs
}

// mustLoadIESpecFile reads and parses an embedded IE spec file (one spec per
// non-empty, non-comment line) into a registry keyed by element ID. It
// panics on malformed input, since the bundled files are part of the binary
// and any error here is a packaging defect, not a runtime condition.
func mustLoadIESpecFile(name string) map[uint16]*InformationElement {
	b, err := specFiles.ReadFile(name)
	if err != nil {
		panic(fmt.Errorf("missing bundled information element spec file %s: %w", name, err))
	}

	m := make(map[uint16]*InformationElement)
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p, err := ParseIESpec(line)
		if err != nil {
			panic(fmt.Errorf("malformed entry in %s: %w", name, err))
		}
		if p.Type == "" {
			panic(fmt.Errorf("entry in %s has no type: %q", name, line))
		}

		typ := p.Type
		ie := &InformationElement{
			Name:         p.Name,
			Id:           p.Number,
			EnterpriseId: p.PEN,
			Constructor:  LookupConstructor(p.Type),
			Semantics:    semantics.Default,
			Status:       status.Current,
			Type:         &typ,
		}
		m[p.Number] = ie
	}
	if err := scanner.Err(); err != nil {
		panic(fmt.Errorf("reading %s: %w", name, err))
	}

	return m
}
