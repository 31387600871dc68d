package rdb

import "fmt"

// readStream decodes a stream-listpacks block (type tag 15):
// listpack pairs, stream length, last entry id, then consumer groups
// with their pending-entry lists.
func (d *Decoder) readStream(key Value) error {
	expiry := d.expiry

	lpCount, err := readLength(d.r)
	if err != nil {
		return err
	}
	if err := d.deliver(d.cb.StartStream(key, int64(lpCount), expiry, d.info("listpacks", 0, 0))); err != nil {
		return err
	}

	for i := uint64(0); i < lpCount; i++ {
		idVal, err := readString(d.r)
		if err != nil {
			return err
		}
		entryID := idVal.Bytes()
		if len(entryID) != 16 {
			return parseErr(ErrBadStreamBlock, d.r.Offset(), "node key is %d bytes, want 16", len(entryID))
		}
		payloadVal, err := readString(d.r)
		if err != nil {
			return err
		}
		payload := payloadVal.Bytes()
		// Every node payload must be a well-formed listpack.
		if _, err := listpackEntries(payload); err != nil {
			return err
		}
		if err := d.element(d.cb.StreamListpack(key, entryID, payload)); err != nil {
			return err
		}
	}

	items, err := readLength(d.r)
	if err != nil {
		return err
	}
	lastMs, err := readLength(d.r)
	if err != nil {
		return err
	}
	lastSeq, err := readLength(d.r)
	if err != nil {
		return err
	}

	cgCount, err := readLength(d.r)
	if err != nil {
		return err
	}
	groups := make([]StreamGroup, 0, cgCount)
	for i := uint64(0); i < cgCount; i++ {
		g, err := d.readStreamGroup()
		if err != nil {
			return err
		}
		groups = append(groups, g)
	}

	lastID := fmt.Sprintf("%d-%d", lastMs, lastSeq)
	return d.deliver(d.cb.EndStream(key, items, lastID, groups))
}

func (d *Decoder) readStreamGroup() (StreamGroup, error) {
	var g StreamGroup

	name, err := readString(d.r)
	if err != nil {
		return g, err
	}
	g.Name = name
	if g.LastDeliveredMs, err = readLength(d.r); err != nil {
		return g, err
	}
	if g.LastDeliveredSeq, err = readLength(d.r); err != nil {
		return g, err
	}

	pending, err := readLength(d.r)
	if err != nil {
		return g, err
	}
	g.Pending = make([]StreamPending, 0, pending)
	for j := uint64(0); j < pending; j++ {
		id, err := d.r.ReadBytes(16)
		if err != nil {
			return g, err
		}
		deliveryTime, err := d.r.Int64LE()
		if err != nil {
			return g, err
		}
		deliveryCount, err := readLength(d.r)
		if err != nil {
			return g, err
		}
		g.Pending = append(g.Pending, StreamPending{ID: id, DeliveryTime: deliveryTime, DeliveryCount: deliveryCount})
	}

	consumers, err := readLength(d.r)
	if err != nil {
		return g, err
	}
	g.Consumers = make([]StreamConsumer, 0, consumers)
	for j := uint64(0); j < consumers; j++ {
		var c StreamConsumer
		if c.Name, err = readString(d.r); err != nil {
			return g, err
		}
		if c.SeenTime, err = d.r.Int64LE(); err != nil {
			return g, err
		}
		cp, err := readLength(d.r)
		if err != nil {
			return g, err
		}
		c.Pending = make([][]byte, 0, cp)
		for k := uint64(0); k < cp; k++ {
			// Consumer PEL entries carry the id only; delivery time
			// and count live in the group-level PEL.
			id, err := d.r.ReadBytes(16)
			if err != nil {
				return g, err
			}
			c.Pending = append(c.Pending, id)
		}
		g.Consumers = append(g.Consumers, c)
	}

	return g, nil
}

// skipStream advances past a stream block without materializing it.
// Byte-for-byte symmetric with readStream.
func (d *Decoder) skipStream() error {
	lpCount, err := readLength(d.r)
	if err != nil {
		return err
	}
	for i := uint64(0); i < lpCount; i++ {
		if err := skipString(d.r); err != nil { // node entry id
			return err
		}
		if err := skipString(d.r); err != nil { // listpack payload
			return err
		}
	}
	if _, err := readLength(d.r); err != nil { // items
		return err
	}
	if _, err := readLength(d.r); err != nil { // last id ms
		return err
	}
	if _, err := readLength(d.r); err != nil { // last id seq
		return err
	}

	cgCount, err := readLength(d.r)
	if err != nil {
		return err
	}
	for i := uint64(0); i < cgCount; i++ {
		if err := skipString(d.r); err != nil { // group name
			return err
		}
		if _, err := readLength(d.r); err != nil {
			return err
		}
		if _, err := readLength(d.r); err != nil {
			return err
		}
		pending, err := readLength(d.r)
		if err != nil {
			return err
		}
		for j := uint64(0); j < pending; j++ {
			if err := d.r.Discard(16 + 8); err != nil {
				return err
			}
			if _, err := readLength(d.r); err != nil {
				return err
			}
		}
		consumers, err := readLength(d.r)
		if err != nil {
			return err
		}
		for j := uint64(0); j < consumers; j++ {
			if err := skipString(d.r); err != nil {
				return err
			}
			if err := d.r.Discard(8); err != nil {
				return err
			}
			cp, err := readLength(d.r)
			if err != nil {
				return err
			}
			if err := d.r.Discard(int64(cp) * 16); err != nil {
				return err
			}
		}
	}
	return nil
}
