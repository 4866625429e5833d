package duo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// activationPayload builds the "<code>-<base64 hostname>" string the
// enrollment QR encodes, pointed at a test server.
func activationPayload(serverURL string) string {
	host := strings.TrimPrefix(serverURL, "https://")
	return "ABCD1234-" + base64.StdEncoding.EncodeToString([]byte(host))
}

func TestActivate(t *testing.T) {
	var gotBody map[string]string
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/push/v2/activation/ABCD1234", r.URL.Path)
		assert.Equal(t, "okhttp/4.9.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &gotBody))

		json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{
				"hotp_secret":   "sécret-bytes-here",
				"customer_name": "UC Berkeley",
				"pkey":          "DP0000000000000000AA",
			},
		})
	}))
	t.Cleanup(server.Close)

	client := NewClient(WithHTTPClient(server.Client()))
	enrollment, err := client.Activate(context.Background(), activationPayload(server.URL))
	require.NoError(t, err)

	assert.Equal(t, "DP0000000000000000AA", enrollment.DeviceKey)
	assert.Equal(t, "UC Berkeley", enrollment.CustomerName)
	require.True(t, enrollment.OTP.Provisioned())
	assert.Contains(t, enrollment.OTP.URI(), "otpauth://hotp/")
	assert.Contains(t, enrollment.OTP.URI(), "counter=0")

	// Fingerprint must claim a plausible mobile client.
	assert.Equal(t, "com.duosecurity.duomobile", gotBody["app_id"])
	assert.Equal(t, "Android", gotBody["platform"])
	assert.Len(t, gotBody, len(deviceInfo))
}

func TestActivateSecretLatin1Decoding(t *testing.T) {
	// Each code point of the JSON string is one raw key byte, including
	// points above 0x7f.
	secret := "éÿabc"
	got := latin1Bytes(secret)
	assert.Equal(t, []byte{0xe9, 0xff, 0x01, 'a', 'b', 'c'}, got)
}

func TestActivateStaleCode(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"message": "Unknown activation code"}`)
	}))
	t.Cleanup(server.Close)

	client := NewClient(WithHTTPClient(server.Client()))
	_, err := client.Activate(context.Background(), activationPayload(server.URL))

	var aerr *ActivationError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, http.StatusNotFound, aerr.StatusCode)
	assert.Contains(t, aerr.Body, "Unknown activation code")
}

func TestSplitPayload(t *testing.T) {
	code, host, err := splitPayload("XYZ-" + base64.StdEncoding.EncodeToString([]byte("api-test.duosecurity.com")))
	require.NoError(t, err)
	assert.Equal(t, "XYZ", code)
	assert.Equal(t, "api-test.duosecurity.com", host)

	// QR payloads strip base64 padding; both forms must decode.
	code, host, err = splitPayload("XYZ-" + base64.RawStdEncoding.EncodeToString([]byte("api-test.duosecurity.com")))
	require.NoError(t, err)
	assert.Equal(t, "XYZ", code)
	assert.Equal(t, "api-test.duosecurity.com", host)

	_, _, err = splitPayload("no-separator-but-bad-base64-!!!")
	assert.Error(t, err)

	_, _, err = splitPayload("")
	assert.Error(t, err)
}

func TestFingerprintBodyOrderFollowsShuffle(t *testing.T) {
	client := NewClient()
	client.shuffle = func(n int, swap func(i, j int)) {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			swap(i, j)
		}
	}

	body, err := client.fingerprintBody()
	require.NoError(t, err)

	last := deviceInfo[len(deviceInfo)-1][0]
	assert.True(t, strings.HasPrefix(string(body), `{"`+last+`":`),
		"key order must follow the injected shuffle, got: %s", body)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Len(t, decoded, len(deviceInfo))
}
