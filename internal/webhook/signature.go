// Copyright 2025 The Eventkeeper Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// signaturePrefix precedes the hex-encoded HMAC in SignatureHeader
const signaturePrefix = "sha256="

// ValidateSignature verifies the HMAC-SHA256 signature of a notification payload.
// It returns true if the signature is valid, false otherwise.
//
// The signature should be in the format "sha256=<hex-encoded-hmac>".
// Both the signature and secret must be non-empty for validation to succeed.
func ValidateSignature(payload []byte, signature string, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	if !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}

	receivedMAC := strings.TrimPrefix(signature, signaturePrefix)

	// Constant-time comparison
	return hmac.Equal([]byte(receivedMAC), []byte(computeMAC(payload, secret)))
}

// Sign returns the SignatureHeader value for payload, for use by relays and tests.
func Sign(payload []byte, secret string) string {
	return signaturePrefix + computeMAC(payload, secret)
}

func computeMAC(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
