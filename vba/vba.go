// Package vba extracts VBA project metadata and module source from the
// vbaProject.bin CFB container embedded in macro-enabled workbooks
// (MS-OVBA).
package vba

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"

	"github.com/TsubasaBE/go-xlsbin/cfb"
)

// Reference is one project reference (a linked type library or project).
type Reference struct {
	Name        string
	Description string
	Path        string
}

// Project is a parsed VBA project: its references and the decompressed
// source of every module.
type Project struct {
	refs    []Reference
	modules map[string][]byte
	enc     encoding.Encoding
}

// Open reads the project's "dir" stream out of the CFB container, parses
// the project and module metadata, and decompresses each module's source.
func Open(f *cfb.File) (*Project, error) {
	raw, err := f.OpenStream("dir")
	if err != nil {
		return nil, fmt.Errorf("vba: %w", err)
	}
	stream, err := cfb.DecompressStream(raw)
	if err != nil {
		return nil, fmt.Errorf("vba: dir stream: %w", err)
	}

	d := &dirStream{b: stream}

	enc, err := d.readInformation()
	if err != nil {
		return nil, err
	}
	refs, err := d.readReferences(enc)
	if err != nil {
		return nil, err
	}
	mods, err := d.readModules(enc)
	if err != nil {
		return nil, err
	}

	p := &Project{refs: refs, modules: make(map[string][]byte, len(mods)), enc: enc}
	for _, m := range mods {
		src, err := f.OpenStream(m.streamName)
		if err != nil {
			return nil, fmt.Errorf("vba: module %q: %w", m.name, err)
		}
		if m.textOffset > len(src) {
			return nil, fmt.Errorf("vba: module %q: text offset %d exceeds stream size %d", m.name, m.textOffset, len(src))
		}
		text, err := cfb.DecompressStream(src[m.textOffset:])
		if err != nil {
			return nil, fmt.Errorf("vba: module %q: %w", m.name, err)
		}
		p.modules[m.name] = text
	}
	return p, nil
}

// References returns the project references in declaration order.
func (p *Project) References() []Reference {
	return p.refs
}

// ModuleNames returns the names of all modules in the project.
func (p *Project) ModuleNames() []string {
	names := make([]string, 0, len(p.modules))
	for name := range p.modules {
		names = append(names, name)
	}
	return names
}

// Module returns the source text of the named module, decoded from the
// project codepage to UTF-8.
func (p *Project) Module(name string) (string, error) {
	raw, err := p.ModuleRaw(name)
	if err != nil {
		return "", err
	}
	return decodeBytes(p.enc, raw), nil
}

// ModuleRaw returns the module source in its original MBCS encoding.
func (p *Project) ModuleRaw(name string) ([]byte, error) {
	m, ok := p.modules[name]
	if !ok {
		return nil, fmt.Errorf("vba: module %q not found", name)
	}
	return m, nil
}

// ── dir stream parsing ────────────────────────────────────────────────────────

type module struct {
	name       string
	streamName string
	textOffset int
}

// dirStream is a byte cursor over the decompressed dir stream.
type dirStream struct {
	b []byte
}

// readInformation consumes the PROJECTINFORMATION record group and returns
// the decoder for the project codepage (the PROJECTCODEPAGE record at a
// fixed offset past the SYSKIND/LCID/LCIDINVOKE records).
func (d *dirStream) readInformation() (encoding.Encoding, error) {
	if err := d.skip(30); err != nil {
		return nil, err
	}
	if err := d.skip(6); err != nil {
		return nil, err
	}
	cp, err := d.u16()
	if err != nil {
		return nil, err
	}
	enc, err := fromCodepage(cp)
	if err != nil {
		return nil, err
	}

	// PROJECTNAME
	if _, err := d.checkVariable(0x0004); err != nil {
		return nil, err
	}
	// PROJECTDOCSTRING + unicode
	if _, err := d.checkVariable(0x0005); err != nil {
		return nil, err
	}
	if _, err := d.checkVariable(0x0040); err != nil {
		return nil, err
	}
	// PROJECTHELPFILEPATH (MS-OVBA §2.3.4.2.1.7)
	if _, err := d.checkVariable(0x0006); err != nil {
		return nil, err
	}
	if _, err := d.checkVariable(0x003D); err != nil {
		return nil, err
	}
	// PROJECTHELPCONTEXT, PROJECTLIBFLAGS, PROJECTVERSION
	if err := d.skip(32); err != nil {
		return nil, err
	}
	// PROJECTCONSTANTS + unicode
	if _, err := d.checkVariable(0x000C); err != nil {
		return nil, err
	}
	if _, err := d.checkVariable(0x003C); err != nil {
		return nil, err
	}
	return enc, nil
}

// readReferences consumes the PROJECTREFERENCES array, which ends at the
// 0x000F record introducing the modules group.
func (d *dirStream) readReferences(enc encoding.Encoding) ([]Reference, error) {
	var refs []Reference
	var ref Reference

	flush := func() {
		if ref.Name != "" {
			refs = append(refs, ref)
		}
	}

	for {
		check, err := d.u16()
		if err != nil {
			return nil, err
		}
		switch check {
		case 0x000F: // end of references
			flush()
			return refs, nil

		case 0x0016: // REFERENCENAME
			flush()
			name, err := d.variable()
			if err != nil {
				return nil, err
			}
			decoded := decodeBytes(enc, name)
			ref = Reference{Name: decoded, Description: decoded}
			if _, err := d.checkVariable(0x003E); err != nil { // unicode name
				return nil, err
			}

		case 0x0033: // REFERENCEORIGINAL
			if err := d.libid(&ref, enc); err != nil {
				return nil, err
			}

		case 0x002F: // REFERENCECONTROL
			if err := d.skip(4); err != nil { // SizeTwiddled
				return nil, err
			}
			if err := d.libid(&ref, enc); err != nil {
				return nil, err
			}
			if err := d.skip(6); err != nil {
				return nil, err
			}
			tok, err := d.u16()
			if err != nil {
				return nil, err
			}
			switch tok {
			case 0x0016: // optional extended name
				if _, err := d.variable(); err != nil {
					return nil, err
				}
				if _, err := d.checkVariable(0x003E); err != nil {
					return nil, err
				}
				if err := d.check(0x0030); err != nil {
					return nil, err
				}
			case 0x0030:
			default:
				return nil, fmt.Errorf("vba: unexpected token 0x%04X in reference control", tok)
			}
			if err := d.skip(4); err != nil {
				return nil, err
			}
			if err := d.libid(&ref, enc); err != nil {
				return nil, err
			}
			if err := d.skip(26); err != nil {
				return nil, err
			}

		case 0x000D: // REFERENCEREGISTERED
			if err := d.skip(4); err != nil {
				return nil, err
			}
			if err := d.libid(&ref, enc); err != nil {
				return nil, err
			}
			if err := d.skip(6); err != nil {
				return nil, err
			}

		case 0x000E: // REFERENCEPROJECT
			if err := d.skip(4); err != nil {
				return nil, err
			}
			absolute, err := d.variable()
			if err != nil {
				return nil, err
			}
			path := decodeBytes(enc, absolute)
			ref.Path = strings.TrimPrefix(path, "*\\C")
			if _, err := d.variable(); err != nil { // relative libid
				return nil, err
			}
			if err := d.skip(6); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("vba: unknown reference record 0x%04X", check)
		}
	}
}

// readModules consumes the PROJECTMODULES group.
func (d *dirStream) readModules(enc encoding.Encoding) ([]module, error) {
	if err := d.skip(4); err != nil {
		return nil, err
	}
	count, err := d.u16()
	if err != nil {
		return nil, err
	}
	if err := d.skip(8); err != nil { // PROJECTCOOKIE
		return nil, err
	}

	mods := make([]module, 0, count)
	for k := 0; k < int(count); k++ {
		name, err := d.checkVariable(0x0019)
		if err != nil {
			return nil, err
		}
		if _, err := d.checkVariable(0x0047); err != nil { // unicode name
			return nil, err
		}
		streamName, err := d.checkVariable(0x001A)
		if err != nil {
			return nil, err
		}
		if _, err := d.checkVariable(0x0032); err != nil { // unicode stream name
			return nil, err
		}
		if _, err := d.checkVariable(0x001C); err != nil { // doc string
			return nil, err
		}
		if _, err := d.checkVariable(0x0048); err != nil { // unicode doc string
			return nil, err
		}

		if err := d.check(0x0031); err != nil { // MODULEOFFSET
			return nil, err
		}
		if err := d.skip(4); err != nil {
			return nil, err
		}
		offset, err := d.u32()
		if err != nil {
			return nil, err
		}

		if err := d.check(0x001E); err != nil { // MODULEHELPCONTEXT
			return nil, err
		}
		if err := d.skip(8); err != nil {
			return nil, err
		}
		if err := d.check(0x002C); err != nil { // MODULECOOKIE
			return nil, err
		}
		if err := d.skip(6); err != nil {
			return nil, err
		}

		typ, err := d.u16()
		if err != nil {
			return nil, err
		}
		if typ != 0x0021 && typ != 0x0022 { // procedural / document-class
			return nil, fmt.Errorf("vba: unknown module type 0x%04X", typ)
		}

	flags:
		for {
			if err := d.skip(4); err != nil { // reserved
				return nil, err
			}
			tok, err := d.u16()
			if err != nil {
				return nil, err
			}
			switch tok {
			case 0x0025, 0x0028: // readonly / private
			case 0x002B: // module terminator
				break flags
			default:
				return nil, fmt.Errorf("vba: unknown module record 0x%04X", tok)
			}
		}
		if err := d.skip(4); err != nil { // reserved
			return nil, err
		}

		mods = append(mods, module{
			name:       decodeBytes(enc, name),
			streamName: decodeBytes(enc, streamName),
			textOffset: int(offset),
		})
	}
	return mods, nil
}

// libid parses a LibidReference: "*\G{...}#version#lcid#path#description".
// Empty or twiddled ("##"-terminated) libids carry no information.
func (d *dirStream) libid(ref *Reference, enc encoding.Encoding) error {
	raw, err := d.variable()
	if err != nil {
		return err
	}
	if len(raw) == 0 || strings.HasSuffix(string(raw), "##") {
		return nil
	}
	libid := decodeBytes(enc, raw)
	last := strings.LastIndexByte(libid, '#')
	if last < 0 {
		return fmt.Errorf("vba: unexpected libid format")
	}
	rest := libid[:last]
	prev := strings.LastIndexByte(rest, '#')
	if prev < 0 {
		return fmt.Errorf("vba: unexpected libid format")
	}
	ref.Description = libid[last+1:]
	if path := rest[prev+1:]; path != "" && ref.Path == "" {
		ref.Path = path
	}
	return nil
}

// ── cursor primitives ─────────────────────────────────────────────────────────

func (d *dirStream) skip(n int) error {
	if len(d.b) < n {
		return fmt.Errorf("vba: dir stream truncated: %w", io.ErrUnexpectedEOF)
	}
	d.b = d.b[n:]
	return nil
}

func (d *dirStream) u16() (uint16, error) {
	if len(d.b) < 2 {
		return 0, fmt.Errorf("vba: dir stream truncated: %w", io.ErrUnexpectedEOF)
	}
	v := uint16(d.b[0]) | uint16(d.b[1])<<8
	d.b = d.b[2:]
	return v, nil
}

func (d *dirStream) u32() (uint32, error) {
	if len(d.b) < 4 {
		return 0, fmt.Errorf("vba: dir stream truncated: %w", io.ErrUnexpectedEOF)
	}
	v := uint32(d.b[0]) | uint32(d.b[1])<<8 | uint32(d.b[2])<<16 | uint32(d.b[3])<<24
	d.b = d.b[4:]
	return v, nil
}

// variable reads a length-prefixed record body (u32 length, then bytes).
func (d *dirStream) variable() ([]byte, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if uint32(len(d.b)) < n {
		return nil, fmt.Errorf("vba: dir stream truncated: %w", io.ErrUnexpectedEOF)
	}
	body := d.b[:n]
	d.b = d.b[n:]
	return body, nil
}

// check consumes a record ID and verifies it.
func (d *dirStream) check(want uint16) error {
	got, err := d.u16()
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("vba: invalid record ID 0x%04X (want 0x%04X)", got, want)
	}
	return nil
}

// checkVariable consumes a record ID and its length-prefixed body.
func (d *dirStream) checkVariable(want uint16) ([]byte, error) {
	if err := d.check(want); err != nil {
		return nil, err
	}
	return d.variable()
}

// ── codepage decoding ─────────────────────────────────────────────────────────

// fromCodepage maps a Windows codepage number to its character encoding.
// Codepage 1252 dominates real-world projects; the CJK pages cover the
// localized Office builds.
func fromCodepage(cp uint16) (encoding.Encoding, error) {
	switch cp {
	case 437:
		return charmap.CodePage437, nil
	case 850:
		return charmap.CodePage850, nil
	case 852:
		return charmap.CodePage852, nil
	case 866:
		return charmap.CodePage866, nil
	case 874:
		return charmap.Windows874, nil
	case 932:
		return japanese.ShiftJIS, nil
	case 936:
		return simplifiedchinese.GBK, nil
	case 949:
		return korean.EUCKR, nil
	case 950:
		return traditionalchinese.Big5, nil
	case 1250:
		return charmap.Windows1250, nil
	case 1251:
		return charmap.Windows1251, nil
	case 1252:
		return charmap.Windows1252, nil
	case 1253:
		return charmap.Windows1253, nil
	case 1254:
		return charmap.Windows1254, nil
	case 1255:
		return charmap.Windows1255, nil
	case 1256:
		return charmap.Windows1256, nil
	case 1257:
		return charmap.Windows1257, nil
	case 1258:
		return charmap.Windows1258, nil
	case 10000:
		return charmap.Macintosh, nil
	case 65001:
		return nil, nil // UTF-8, no transformation needed
	}
	return nil, fmt.Errorf("vba: unsupported codepage %d", cp)
}

// decodeBytes converts b from the project encoding to a UTF-8 string.
// Undecodable bytes become U+FFFD rather than failing the whole module.
func decodeBytes(enc encoding.Encoding, b []byte) string {
	if enc == nil {
		return string(b)
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
