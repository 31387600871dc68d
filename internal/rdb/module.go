package rdb

// moduleNameCharset is the 64-symbol alphabet module names are packed
// with, six bits per character.
const moduleNameCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// ModuleTypeName unpacks the nine-character name from a 64-bit module
// id. The low 10 bits are the module's encoding version; the remaining
// 54 bits hold the name, most-significant character first.
func ModuleTypeName(id uint64) string {
	name := make([]byte, 9)
	v := id >> 10
	for i := 8; i >= 0; i-- {
		name[i] = moduleNameCharset[v&63]
		v >>= 6
	}
	return string(name)
}

// readModule decodes a module-v2 block: the packed module id, then
// (opcode, payload) items until the EOF opcode. key is the zero Value
// for MODULE-AUX blocks. The whole block is captured so replay sinks
// can ask for its raw bytes.
func (d *Decoder) readModule(key Value) error {
	expiry := d.expiry
	start := d.r.Offset()
	d.r.StartCapture()

	id, err := readLength(d.r)
	if err != nil {
		d.r.StopCapture()
		return err
	}
	name := ModuleTypeName(id)

	record, err := d.cb.StartModule(key, name, expiry, d.info(name, 0, 0))
	if err := d.deliver(err); err != nil {
		d.r.StopCapture()
		return err
	}

	for {
		opcode, err := readLength(d.r)
		if err != nil {
			d.r.StopCapture()
			return err
		}
		if opcode == ModuleOpcodeEOF {
			break
		}

		var data any
		switch opcode {
		case ModuleOpcodeSInt, ModuleOpcodeUInt:
			v, err := readLength(d.r)
			if err != nil {
				d.r.StopCapture()
				return err
			}
			data = int64(v)
		case ModuleOpcodeFloat:
			v, err := d.r.Float32LE()
			if err != nil {
				d.r.StopCapture()
				return err
			}
			data = v
		case ModuleOpcodeDouble:
			v, err := d.r.Float64LE()
			if err != nil {
				d.r.StopCapture()
				return err
			}
			data = v
		case ModuleOpcodeString:
			v, err := readString(d.r)
			if err != nil {
				d.r.StopCapture()
				return err
			}
			data = v
		default:
			d.r.StopCapture()
			return parseErr(ErrBadModuleOpcode, d.r.Offset(), "opcode %d in module %s", opcode, name)
		}

		if err := d.element(d.cb.HandleModuleData(key, opcode, data)); err != nil {
			d.r.StopCapture()
			return err
		}
	}

	buffer := d.r.StopCapture()
	size := d.r.Offset() - start
	if !record {
		buffer = nil
	}
	return d.deliver(d.cb.EndModule(key, size, buffer))
}

// skipModule advances past a module-v2 block. Byte-for-byte symmetric
// with readModule.
func (d *Decoder) skipModule() error {
	if _, err := readLength(d.r); err != nil { // module id
		return err
	}
	for {
		opcode, err := readLength(d.r)
		if err != nil {
			return err
		}
		switch opcode {
		case ModuleOpcodeEOF:
			return nil
		case ModuleOpcodeSInt, ModuleOpcodeUInt:
			if _, err := readLength(d.r); err != nil {
				return err
			}
		case ModuleOpcodeFloat:
			if err := d.r.Discard(4); err != nil {
				return err
			}
		case ModuleOpcodeDouble:
			if err := d.r.Discard(8); err != nil {
				return err
			}
		case ModuleOpcodeString:
			if err := skipString(d.r); err != nil {
				return err
			}
		default:
			return parseErr(ErrBadModuleOpcode, d.r.Offset(), "opcode %d", opcode)
		}
	}
}
