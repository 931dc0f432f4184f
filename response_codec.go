// response_codec.go: conversion of plugin payloads into HTTP responses
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package nativeplugins

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ResponseKind selects how a route's payload is served.
type ResponseKind string

const (
	KindText ResponseKind = "text"
	KindHTML ResponseKind = "html"
	KindJSON ResponseKind = "json"
)

// Content types written for each kind.
const (
	ContentTypeText = "text/plain; charset=utf-8"
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypeJSON = "application/json"
)

// ParseResponseKind parses a response_type value case-insensitively.
func ParseResponseKind(s string) (ResponseKind, error) {
	switch ResponseKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindText:
		return KindText, nil
	case KindHTML:
		return KindHTML, nil
	case KindJSON:
		return KindJSON, nil
	default:
		return "", fmt.Errorf("unsupported response format: %q", s)
	}
}

// ContentType returns the Content-Type header for k.
func (k ResponseKind) ContentType() string {
	switch k {
	case KindHTML:
		return ContentTypeHTML
	case KindJSON:
		return ContentTypeJSON
	default:
		return ContentTypeText
	}
}

// Response is an encoded plugin payload. It is always served with status 200.
type Response struct {
	ContentType string
	Body        []byte

	// Set when a json payload could not be parsed; Body then holds the
	// JSON string describing the failure.
	ParseError error
}

// EncodeResponse turns a plugin payload into a response of the given kind.
//
// Text and html payloads are served verbatim. Json payloads are parsed and
// re-serialised compactly with numbers preserved as written; a payload that
// does not parse is served as the JSON string "Error parsing JSON: <message>".
func EncodeResponse(kind ResponseKind, payload string) Response {
	if kind != KindJSON {
		return Response{ContentType: kind.ContentType(), Body: []byte(payload)}
	}

	body, err := normalizeJSON(payload)
	if err != nil {
		body = encodeJSONValue("Error parsing JSON: " + err.Error())
		return Response{ContentType: ContentTypeJSON, Body: body, ParseError: err}
	}
	return Response{ContentType: ContentTypeJSON, Body: body}
}

// Write sends r with status 200.
func (r Response) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", r.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(r.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(r.Body)
}

func normalizeJSON(payload string) ([]byte, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		if err == io.EOF {
			return nil, errors.New("unexpected end of JSON input")
		}
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, errors.New("trailing characters after JSON value")
	}
	return encodeJSONValue(value), nil
}

func encodeJSONValue(v interface{}) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return []byte(`null`)
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}
