package bedrock

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
)

// Credentials is one SigV4 key pair, optionally with a session token.
type Credentials struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token,omitempty"`
}

const signingAlgorithm = "AWS4-HMAC-SHA256"

// Sign computes the SigV4 authorization for one HTTP request as a pure
// function of its parts. It returns a copy of header with Host, X-Amz-Date,
// the optional security token, and Authorization populated; nothing else is
// mutated, and no HTTP client is involved. The server verifies the signature
// bit-for-bit, so canonicalization here must match the published algorithm
// exactly: canonical request, string-to-sign, then the derived key chain
// date -> region -> service -> signing key.
func Sign(method, rawURL string, header http.Header, payload []byte, creds Credentials, region, service string, now time.Time) (http.Header, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse url to sign")
	}

	amzDate := now.UTC().Format("20060102T150405Z")
	dateStamp := now.UTC().Format("20060102")

	signed := http.Header{}
	for k, vs := range header {
		signed[k] = append([]string(nil), vs...)
	}
	signed.Set("Host", u.Host)
	signed.Set("X-Amz-Date", amzDate)
	if creds.SessionToken != "" {
		signed.Set("X-Amz-Security-Token", creds.SessionToken)
	}

	canonicalHeaders, signedHeaderNames := canonicalizeHeaders(signed)
	payloadHash := hexSHA256(payload)

	canonicalRequest := strings.Join([]string{
		method,
		canonicalURI(u),
		canonicalQuery(u),
		canonicalHeaders,
		signedHeaderNames,
		payloadHash,
	}, "\n")

	credentialScope := strings.Join([]string{dateStamp, region, service, "aws4_request"}, "/")
	stringToSign := strings.Join([]string{
		signingAlgorithm,
		amzDate,
		credentialScope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	signingKey := deriveSigningKey(creds.SecretAccessKey, dateStamp, region, service)
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	signed.Set("Authorization", signingAlgorithm+
		" Credential="+creds.AccessKeyID+"/"+credentialScope+
		", SignedHeaders="+signedHeaderNames+
		", Signature="+signature)
	return signed, nil
}

// deriveSigningKey runs the SigV4 key chain: each step HMACs the next scope
// component with the previous key.
func deriveSigningKey(secret, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, "aws4_request")
}

func canonicalURI(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	// EscapedPath preserves the segment encoding the caller signed for.
	return u.EscapedPath()
}

func canonicalQuery(u *url.URL) string {
	query := u.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		values := append([]string(nil), query[k]...)
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, uriEncode(k)+"="+uriEncode(v))
		}
	}
	return strings.Join(parts, "&")
}

// uriEncode is the SigV4 variant of percent-encoding: unreserved characters
// stay literal, everything else (space included) is %XX with uppercase hex.
func uriEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			const hexDigits = "0123456789ABCDEF"
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0xf])
		}
	}
	return b.String()
}

func canonicalizeHeaders(header http.Header) (canonical, signedNames string) {
	names := make([]string, 0, len(header))
	for k := range header {
		names = append(names, strings.ToLower(k))
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		values := header.Values(http.CanonicalHeaderKey(name))
		trimmed := make([]string, len(values))
		for i, v := range values {
			trimmed[i] = strings.Join(strings.Fields(v), " ")
		}
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(strings.Join(trimmed, ","))
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(names, ";")
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
