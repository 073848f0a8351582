package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesPathFilter(t *testing.T) {
	cases := []struct {
		name       string
		pathFilter string
		changed    []string
		want       bool
	}{
		{"exact match", "src/main.go", []string{"src/main.go"}, true},
		{"no match", "src/main.go", []string{"README.md"}, false},
		{"glob star", "src/*.go", []string{"src/handler.go"}, true},
		{"doublestar recursive", "src/**/*.go", []string{"src/internal/deep/file.go"}, true},
		{"comma list second matches", "docs/*, src/*.go", []string{"src/main.go"}, true},
		{"empty filter matches nothing", "", []string{"src/main.go"}, false},
		{"no changed files", "src/*.go", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, matchesPathFilter(tc.pathFilter, tc.changed))
		})
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "s3cr3t"
	body := []byte(`{"ref":"refs/heads/main"}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	valid := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.True(t, verifyWebhookSignature(body, valid, secret))
	assert.False(t, verifyWebhookSignature(body, valid, "wrong-secret"))
	assert.False(t, verifyWebhookSignature(body, "sha1=deadbeef", secret))
	assert.False(t, verifyWebhookSignature(body, "", secret))
}

func TestChangedFiles(t *testing.T) {
	p := githubPushPayload{HeadCommit: &githubHeadCommit{
		Added:    []string{"a.go"},
		Modified: []string{"b.go"},
		Removed:  []string{"c.go"},
	}}
	assert.ElementsMatch(t, []string{"a.go", "b.go", "c.go"}, p.changedFiles())
}

func TestChangedFilesNilHeadCommit(t *testing.T) {
	p := githubPushPayload{}
	assert.Nil(t, p.changedFiles())
}
