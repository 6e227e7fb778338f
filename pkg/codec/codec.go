// Blendix Serial Core
// Copyright (c) 2026 The Blendix Serial Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Blendix Serial Core.
//
// Blendix Serial Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Blendix Serial Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Blendix Serial Core.  If not, see <http://www.gnu.org/licenses/>.

// Package codec parses and validates the newline-delimited serial line
// protocol and formats outgoing transform lines.
//
// Receive lines look like "1.5,2,3;some text" where either segment may be
// empty. Send lines look like "1.00, 2.00, 3.00, 4.00, 5.00, 6.00;".
package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/models"
	"github.com/rs/zerolog/log"
)

const (
	SegmentSeparator = ";"
	ValueSeparator   = ","
	ObjectSeparator  = ", "
	LineTerminator   = '\n'
	SendTerminator   = ";"
	maxSendDecimals  = 2
)

// Drop reasons. Callers compare with errors.Is.
var (
	ErrEmptyLine         = errors.New("empty line")
	ErrBadNumber         = errors.New("invalid numeric value")
	ErrMissingTerminator = errors.New("missing trailing ';'")
	ErrTooManyDecimals   = errors.New("more than two decimal places")
	ErrInvalidEncoding   = errors.New("line is not valid utf-8")
	ErrLineTooLong       = errors.New("line exceeds maximum length")
	ErrNothingToSend     = errors.New("no send targets configured")
)

// parseValues splits a numeric segment on ',' and parses every trimmed
// token. Any bad token fails the whole segment.
func parseValues(segment string) ([]float64, error) {
	tokens := strings.Split(segment, ValueSeparator)
	values := make([]float64, 0, len(tokens))
	for _, tok := range tokens {
		v, err := parseFloat(strings.TrimSpace(tok))
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// normalizeNumber rejects hex literals and doubled signs, and strips
// digit-group underscores. An underscore must sit between two digits.
func normalizeNumber(tok string) (string, bool) {
	unsigned := strings.TrimPrefix(strings.TrimPrefix(tok, "+"), "-")
	if len(unsigned) < len(tok)-1 {
		return "", false
	}
	if len(unsigned) >= 2 && unsigned[0] == '0' && (unsigned[1] == 'x' || unsigned[1] == 'X') {
		return "", false
	}

	if !strings.Contains(tok, "_") {
		return tok, true
	}
	for i := range len(tok) {
		if tok[i] != '_' {
			continue
		}
		if i == 0 || i == len(tok)-1 || !isDigit(tok[i-1]) || !isDigit(tok[i+1]) {
			return "", false
		}
	}
	return strings.ReplaceAll(tok, "_", ""), true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// parseFloat parses a decimal float. Out of range magnitudes saturate to
// ±Inf or zero instead of failing.
func parseFloat(tok string) (float64, error) {
	clean, ok := normalizeNumber(tok)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrBadNumber, tok)
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%w: %q", ErrBadNumber, tok)
	}
	return v, nil
}

// parseInt checks a decimal integer. Integers too large for int64 are
// still well formed.
func parseInt(tok string) error {
	clean, ok := normalizeNumber(tok)
	if !ok {
		return fmt.Errorf("%w: %q", ErrBadNumber, tok)
	}
	if _, err := strconv.ParseInt(clean, 10, 64); err != nil && !errors.Is(err, strconv.ErrRange) {
		return fmt.Errorf("%w: %q", ErrBadNumber, tok)
	}
	return nil
}

// CheckReceive returns the reason a received line would be dropped, or nil
// when the line is valid.
func CheckReceive(line string) error {
	if line == "" {
		return ErrEmptyLine
	}

	numeric, _, _ := strings.Cut(line, SegmentSeparator)
	numeric = strings.TrimSpace(numeric)
	if numeric == "" {
		return nil
	}

	if _, err := parseValues(numeric); err != nil {
		return err
	}
	return nil
}

// ValidateReceive reports whether a received line is well formed.
func ValidateReceive(line string) bool {
	return CheckReceive(line) == nil
}

// ParseReceive turns one received line into a Record. It never fails: a
// numeric segment that does not parse becomes an empty vector and the text
// segment is still kept.
//
// A line without ';' yields an empty record. Numeric-only lines must carry
// a trailing ';' to be applied.
func ParseReceive(line string) models.Record {
	if line == "" {
		return models.Record{Values: []float64{}}
	}

	numeric, text, found := strings.Cut(line, SegmentSeparator)
	if !found {
		return models.Record{Values: []float64{}}
	}

	values := []float64{}
	numeric = strings.TrimSpace(numeric)
	if numeric != "" {
		parsed, err := parseValues(numeric)
		if err != nil {
			log.Debug().Err(err).Str("segment", numeric).Msg("dropping numeric segment")
		} else {
			values = parsed
		}
	}

	return models.Record{
		Values: values,
		Text:   strings.TrimSpace(text),
	}
}

// CheckSend returns the reason an outgoing line would be dropped, or nil
// when it is valid.
func CheckSend(line string) error {
	body, ok := strings.CutSuffix(line, SendTerminator)
	if !ok {
		return ErrMissingTerminator
	}

	for _, tok := range strings.Split(body, ValueSeparator) {
		tok = strings.TrimSpace(tok)
		if dot := strings.LastIndex(tok, "."); dot >= 0 {
			if _, err := parseFloat(tok); err != nil {
				return err
			}
			if len(tok)-dot-1 > maxSendDecimals {
				return fmt.Errorf("%w: %q", ErrTooManyDecimals, tok)
			}
			continue
		}
		if err := parseInt(tok); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSend reports whether an outgoing line is well formed.
func ValidateSend(line string) bool {
	return CheckSend(line) == nil
}
