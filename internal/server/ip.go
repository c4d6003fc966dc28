package server

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// unknownClient is the rate-limit key when no address can be read.
const unknownClient = "unknown"

// ------------------------------------------------------------
// Client address
//
// The service usually runs behind a load balancer or CloudFront, so
// RemoteAddr is the proxy. The forwarding headers are read first and only
// public addresses are taken from them.
// ------------------------------------------------------------

// isPublicIP reports false for private, loopback and link-local addresses.
func isPublicIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsPrivate() {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return false
	}
	return true
}

func safeParseIP(s string) net.IP {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return net.ParseIP(s)
}

// clientIP
//
// Order:
//  1. X-Forwarded-For, first public address
//  2. CloudFront-Viewer-Address, port removed
//  3. RemoteAddr, any valid address (a direct peer is the client)
//  4. "unknown"
func clientIP(r *http.Request) string {

	// 1) X-Forwarded-For, e.g. "203.0.113.1, 10.0.1.24"
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			ip := safeParseIP(part)
			if isPublicIP(ip) {
				return ip.String()
			}
		}
	}

	// 2) CloudFront-Viewer-Address, e.g. "203.0.113.55:44321" or
	// "2404:6800:4004::200e:44321"
	if cf := r.Header.Get("CloudFront-Viewer-Address"); cf != "" {
		host := cf
		if i := strings.LastIndex(cf, ":"); i != -1 {
			host = cf[:i]
		}
		ip := safeParseIP(host)
		if isPublicIP(ip) {
			return ip.String()
		}
	}

	// 3) RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if ip := safeParseIP(host); ip != nil {
			return ip.String()
		}
	}

	return unknownClient
}

// hashIP is the audit form of a client address: sha256 hex, empty when
// the address is unknown.
func hashIP(ip string) string {
	if ip == "" || ip == unknownClient {
		return ""
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}
