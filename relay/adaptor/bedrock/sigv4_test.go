package bedrock

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Published SigV4 reference credentials (the AWS "get-vanilla" test suite).
var testCreds = Credentials{
	AccessKeyID:     "AKIDEXAMPLE",
	SecretAccessKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
}

var testTime = time.Date(2015, 8, 30, 12, 36, 0, 0, time.UTC)

func TestSignMatchesReferenceVector(t *testing.T) {
	signed, err := Sign("GET", "https://example.amazonaws.com/", http.Header{}, nil,
		testCreds, "us-east-1", "service", testTime)
	require.NoError(t, err)

	require.Equal(t, "20150830T123600Z", signed.Get("X-Amz-Date"))
	require.Equal(t,
		"AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20150830/us-east-1/service/aws4_request, "+
			"SignedHeaders=host;x-amz-date, "+
			"Signature=5fa00fa31553b73ebf1942676e86291e8372ff2a2260956d9b8aae1d763fbf31",
		signed.Get("Authorization"))
}

func TestSignIsPureFunction(t *testing.T) {
	body := []byte(`{"messages":[]}`)
	first, err := Sign("POST", "https://bedrock-runtime.us-east-1.amazonaws.com/model/m/invoke",
		http.Header{"Content-Type": {"application/json"}}, body, testCreds, "us-east-1", "bedrock", testTime)
	require.NoError(t, err)
	second, err := Sign("POST", "https://bedrock-runtime.us-east-1.amazonaws.com/model/m/invoke",
		http.Header{"Content-Type": {"application/json"}}, body, testCreds, "us-east-1", "bedrock", testTime)
	require.NoError(t, err)
	require.Equal(t, first.Get("Authorization"), second.Get("Authorization"))

	// The input header must not be mutated.
	original := http.Header{"Content-Type": {"application/json"}}
	_, err = Sign("POST", "https://bedrock-runtime.us-east-1.amazonaws.com/model/m/invoke",
		original, body, testCreds, "us-east-1", "bedrock", testTime)
	require.NoError(t, err)
	require.Empty(t, original.Get("Authorization"))
	require.Empty(t, original.Get("X-Amz-Date"))
}

func TestSignBodyChangesSignature(t *testing.T) {
	a, err := Sign("POST", "https://bedrock-runtime.us-east-1.amazonaws.com/model/m/invoke",
		http.Header{}, []byte(`{"a":1}`), testCreds, "us-east-1", "bedrock", testTime)
	require.NoError(t, err)
	b, err := Sign("POST", "https://bedrock-runtime.us-east-1.amazonaws.com/model/m/invoke",
		http.Header{}, []byte(`{"a":2}`), testCreds, "us-east-1", "bedrock", testTime)
	require.NoError(t, err)
	require.NotEqual(t, a.Get("Authorization"), b.Get("Authorization"))
}

func TestSignIncludesSessionToken(t *testing.T) {
	creds := testCreds
	creds.SessionToken = "session-token"
	signed, err := Sign("GET", "https://example.amazonaws.com/", http.Header{}, nil,
		creds, "us-east-1", "service", testTime)
	require.NoError(t, err)
	require.Equal(t, "session-token", signed.Get("X-Amz-Security-Token"))
	require.Contains(t, signed.Get("Authorization"), "x-amz-security-token")
}
