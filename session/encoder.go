package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersionV1 = 1

const maxPayloadEntries = 256

// Encode serializes a session to its binary record form. The handle is the
// Redis key and is not part of the blob.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionV1)

	if len(s.IdentityID) > 65535 {
		return nil, errors.New("identity id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.IdentityID))); err != nil {
		return nil, err
	}
	buf.WriteString(s.IdentityID)

	buf.Write(s.RefreshHash[:])

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.LastRefreshedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	if len(s.Payload) > maxPayloadEntries {
		return nil, errors.New("payload too large")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.Payload))); err != nil {
		return nil, err
	}
	for k, v := range s.Payload {
		if len(k) > 65535 || len(v) > 65535 {
			return nil, errors.New("payload entry too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(k))); err != nil {
			return nil, err
		}
		buf.WriteString(k)
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(v))); err != nil {
			return nil, err
		}
		buf.WriteString(v)
	}

	return buf.Bytes(), nil
}

// Decode parses a binary session record. The caller sets Handle from the key.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionV1 {
		return nil, errors.New("invalid session record version")
	}

	s := &Session{}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, err
	}
	s.IdentityID = string(id)

	if _, err := io.ReadFull(reader, s.RefreshHash[:]); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.LastRefreshedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}

	var entries uint16
	if err := binary.Read(reader, binary.BigEndian, &entries); err != nil {
		return nil, err
	}
	if entries > 0 {
		s.Payload = make(map[string]string, entries)
		for i := uint16(0); i < entries; i++ {
			var kLen uint16
			if err := binary.Read(reader, binary.BigEndian, &kLen); err != nil {
				return nil, err
			}
			k := make([]byte, kLen)
			if _, err := io.ReadFull(reader, k); err != nil {
				return nil, err
			}
			var vLen uint16
			if err := binary.Read(reader, binary.BigEndian, &vLen); err != nil {
				return nil, err
			}
			v := make([]byte, vLen)
			if _, err := io.ReadFull(reader, v); err != nil {
				return nil, err
			}
			s.Payload[string(k)] = string(v)
		}
	}

	return s, nil
}
