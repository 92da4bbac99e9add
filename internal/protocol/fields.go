package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// fieldScanner consumes a payload slice field by field.
//
// It is the explicit replacement for the declarative field grammar the
// original firmware documentation describes: each method decodes one
// field kind and advances the cursor.
type fieldScanner struct {
	buf []byte
}

// comma returns the bytes up to (not including) the next ',' and consumes
// the separator. A missing separator is a structural error.
func (s *fieldScanner) comma(field string) ([]byte, error) {
	i := bytes.IndexByte(s.buf, ',')
	if i < 0 {
		return nil, fmt.Errorf("%w: field %s: missing separator in %q", ErrMalformedPacket, field, s.buf)
	}
	tok := s.buf[:i]
	s.buf = s.buf[i+1:]
	return tok, nil
}

// rest returns all remaining bytes, consuming them.
func (s *fieldScanner) rest() []byte {
	tok := s.buf
	s.buf = nil
	return tok
}

// take returns exactly n raw bytes.
func (s *fieldScanner) take(n int, field string) ([]byte, error) {
	if len(s.buf) < n {
		return nil, fmt.Errorf("%w: field %s: need %d bytes, have %d", ErrMalformedPacket, field, n, len(s.buf))
	}
	tok := s.buf[:n]
	s.buf = s.buf[n:]
	return tok, nil
}

// expect consumes the given literal prefix or fails.
func (s *fieldScanner) expect(lit []byte, field string) error {
	if !bytes.HasPrefix(s.buf, lit) {
		return fmt.Errorf("%w: field %s: expected %q in %q", ErrMalformedPacket, field, lit, s.buf)
	}
	s.buf = s.buf[len(lit):]
	return nil
}

// optional maps an empty token to nil. Several position sub-fields use
// empty-means-absent semantics on the wire.
func optional(tok []byte) []byte {
	if len(tok) == 0 {
		return nil
	}
	return tok
}

// decodeDigits parses exactly len(tok) ASCII digits into an int.
func decodeDigits(tok []byte, field string) (int, error) {
	if len(tok) == 0 {
		return 0, fmt.Errorf("%w: field %s: empty", ErrMalformedField, field)
	}
	for _, b := range tok {
		if b < '0' || b > '9' {
			return 0, fmt.Errorf("%w: field %s: non-digit in %q", ErrMalformedField, field, tok)
		}
	}
	n, err := strconv.Atoi(string(tok))
	if err != nil {
		return 0, fmt.Errorf("%w: field %s: %q: %w", ErrMalformedField, field, tok, err)
	}
	return n, nil
}

// decodeVoltage parses an ASCII centivolt count into volts.
// "410" decodes to 4.10.
func decodeVoltage(tok []byte, field string) (float64, error) {
	n, err := decodeDigits(tok, field)
	if err != nil {
		return 0, err
	}
	return float64(n) / 100, nil
}

// dateTimeFieldLen is the fixed width of the wire datetime: six two-digit
// components, yymmddhhmmss.
const dateTimeFieldLen = 12

// absentDateTime is the sentinel a device sends when its clock is unset.
var absentDateTime = []byte("000000000000")

// decodeDateTime parses the fixed-width wire datetime.
//
// The all-zero sentinel decodes to the zero time.Time ("absent"), not an
// error and not an epoch date. A two-digit year is expanded with the
// current century at decode time.
func decodeDateTime(tok []byte, field string) (time.Time, error) {
	if len(tok) != dateTimeFieldLen {
		return time.Time{}, fmt.Errorf("%w: field %s: want %d bytes, got %q", ErrMalformedField, field, dateTimeFieldLen, tok)
	}

	if bytes.Equal(tok, absentDateTime) {
		return time.Time{}, nil
	}

	parts := make([]int, 6)
	for i := range parts {
		n, err := decodeDigits(tok[i*2:i*2+2], field)
		if err != nil {
			return time.Time{}, err
		}
		parts[i] = n
	}

	century := time.Now().Year() / 100 * 100
	year := century + parts[0]
	month, day := parts[1], parts[2]
	hour, minute, second := parts[3], parts[4], parts[5]

	// Reject values time.Date would silently normalise.
	if month < 1 || month > 12 || day < 1 || day > 31 ||
		hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("%w: field %s: invalid calendar values in %q", ErrMalformedField, field, tok)
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}

// encodeDateTime emits the fixed-width wire datetime for a concrete
// timestamp: each component zero-padded to width 2, year modulo 100.
func encodeDateTime(t time.Time) string {
	return fmt.Sprintf("%02d%02d%02d%02d%02d%02d",
		t.Year()%100, int(t.Month()), t.Day(),
		t.Hour(), t.Minute(), t.Second())
}
