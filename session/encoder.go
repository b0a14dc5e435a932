package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	// CurrentSchemaVersion is written by [Encode].
	CurrentSchemaVersion uint8 = 2
	schemaVersionV1      uint8 = 1
)

// Encode serializes s into the current binary schema.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	var buf bytes.Buffer

	buf.WriteByte(CurrentSchemaVersion)

	if err := writeShort(&buf, s.Phone, "phone"); err != nil {
		return nil, err
	}
	if err := writeLong(&buf, s.AccessToken, "access token"); err != nil {
		return nil, err
	}
	if err := writeShort(&buf, s.LoginRequestID, "login request id"); err != nil {
		return nil, err
	}
	buf.WriteByte(byte(s.LoginState))
	if err := writeLong(&buf, s.LoginMessage, "login message"); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by [Encode]. Version 1 blobs predate login
// tracking and decode with an idle login state.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != CurrentSchemaVersion && version != schemaVersionV1 {
		return nil, errors.New("invalid session version")
	}

	s := &Session{SchemaVersion: version}

	if s.Phone, err = readShort(reader); err != nil {
		return nil, err
	}
	if s.AccessToken, err = readLong(reader); err != nil {
		return nil, err
	}

	if version == CurrentSchemaVersion {
		if s.LoginRequestID, err = readShort(reader); err != nil {
			return nil, err
		}
		state, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		if state > byte(LoginCancelled) {
			return nil, errors.New("invalid login state")
		}
		s.LoginState = LoginState(state)
		if s.LoginMessage, err = readLong(reader); err != nil {
			return nil, err
		}
	}

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing session bytes")
	}

	return s, nil
}

func writeShort(buf *bytes.Buffer, v, field string) error {
	if len(v) > math.MaxUint8 {
		return errors.New(field + " too long")
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func writeLong(buf *bytes.Buffer, v, field string) error {
	if len(v) > math.MaxUint16 {
		return errors.New(field + " too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(v))); err != nil {
		return err
	}
	buf.WriteString(v)
	return nil
}

func readShort(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readLong(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
