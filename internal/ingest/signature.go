// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the request header carrying the HMAC signature.
const SignatureHeader = "X-Hub-Signature-256"

// signaturePrefix prefixes the hex digest in the header value.
const signaturePrefix = "sha256="

// Sign computes the hex-encoded HMAC-SHA256 of body keyed by secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureFor returns the full header value ("sha256=<hex>") for body.
func SignatureFor(body []byte, secret string) string {
	return signaturePrefix + Sign(body, secret)
}

// VerifySignature reports whether header carries a valid signature for
// body. Comparison is constant time.
func VerifySignature(body []byte, header, secret string) bool {
	got := strings.TrimPrefix(header, signaturePrefix)
	expected := Sign(body, secret)
	return hmac.Equal([]byte(got), []byte(expected))
}
