package urlnorm

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

/*
Normalize applies the six-step deterministic pipeline required before any
bloom check or frontier dedup:

 1. Lowercase scheme and host; strip default ports.
 2. Discard the fragment.
 3. Collapse duplicate slashes in the path; resolve "." and ".." segments.
 4. Sort query parameters lexicographically; drop an empty trailing "?".
 5. Reject non-http(s) schemes.
 6. Reject hosts with no public suffix.

Two URLs that normalize identically must share one bloom slot and one
frontier entry.
*/

func Normalize(raw string) (url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return url.URL{}, fmt.Errorf("parse url: %w", err)
	}

	scheme := lowerASCII(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return url.URL{}, fmt.Errorf("rejected scheme %q", u.Scheme)
	}
	u.Scheme = scheme

	host := lowerASCII(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}

	suffix, icann := publicsuffix.PublicSuffix(host)
	if (!icann && !strings.Contains(host, ".")) || suffix == host {
		return url.URL{}, fmt.Errorf("host %q has no public suffix", host)
	}

	u.Fragment = ""
	u.RawFragment = ""

	u.Path = cleanPath(u.Path)

	u.RawQuery = sortQuery(u.RawQuery)
	u.ForceQuery = false

	u.User = nil

	return *u, nil
}

func lowerASCII(s string) string {
	return strings.ToLower(s)
}

// cleanPath collapses duplicate slashes and resolves "." / ".." segments
// lexically, without touching the filesystem.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}

	trailingSlash := strings.HasSuffix(p, "/") && p != "/"

	segments := strings.Split(p, "/")
	resolved := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(resolved) > 0 {
				resolved = resolved[:len(resolved)-1]
			}
		default:
			resolved = append(resolved, seg)
		}
	}

	cleaned := "/" + strings.Join(resolved, "/")
	if trailingSlash && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

// sortQuery sorts query parameters lexicographically by their encoded
// "key=value" pair and drops an empty trailing "?".
func sortQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	pairs := strings.Split(rawQuery, "&")
	filtered := pairs[:0]
	for _, p := range pairs {
		if p != "" {
			filtered = append(filtered, p)
		}
	}
	sort.Strings(filtered)
	return strings.Join(filtered, "&")
}

// Domain extracts the normalized domain (lowercased host, no port) from a
// normalized URL, for shard assignment and frontier file naming.
func Domain(u url.URL) string {
	return u.Hostname()
}
