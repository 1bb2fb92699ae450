// Package qr builds the opaque attendance payloads shown as QR codes and
// encodes them as PNG images.
package qr

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"smartattend/internal/token"
)

const (
	sessionPrefix = "Session-"
	scanPrefix    = "ATTENDANCE_SESSION_"

	// DefaultSize is the edge length of generated images in pixels.
	DefaultSize = 256
)

// SessionPayload is the value a teacher shows for one class session.
func SessionPayload(sessionID string, now time.Time) string {
	return fmt.Sprintf("%s%s-%d", sessionPrefix, sessionID, now.UnixMilli())
}

// GeneratorPayload is the value of an ad-hoc QR not tied to a session.
func GeneratorPayload(now time.Time) string {
	return fmt.Sprintf("%s%d", sessionPrefix, now.UnixMilli())
}

// ScanPayload stands in for the value decoded from a scanned code.
func ScanPayload() string {
	return scanPrefix + token.Base36(9)
}

// ParseSessionPayload extracts the session id from a SessionPayload value.
func ParseSessionPayload(payload string) (string, bool) {
	rest, ok := strings.CutPrefix(payload, sessionPrefix)
	if !ok {
		return "", false
	}
	i := strings.LastIndexByte(rest, '-')
	if i <= 0 {
		return "", false
	}
	if _, err := strconv.ParseInt(rest[i+1:], 10, 64); err != nil {
		return "", false
	}
	return rest[:i], true
}

// PNG encodes payload as a QR code image.
func PNG(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("qr: empty payload")
	}
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}

// DataURL wraps a PNG so it can be used as an image source or download link.
func DataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

// DownloadName is the file name offered for a session's QR image.
func DownloadName(sessionID string) string {
	if sessionID == "" {
		sessionID = "session"
	}
	return "qr-session-" + sessionID + ".png"
}
