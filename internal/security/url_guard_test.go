package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestNewSafeClientTimeout はタイムアウト設定が反映されることをテストする。
func TestNewSafeClientTimeout(t *testing.T) {
	guard := NewURLGuard()
	timeout := 5 * time.Second
	client := guard.NewSafeClient(timeout)
	if client.Timeout != timeout {
		t.Errorf("expected timeout %v, got %v", timeout, client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Fatal("expected custom Transport")
	}
}

// TestNewSafeClientBlocksLoopback はループバックへのリクエストがブロックされることをテストする。
// httptestサーバーは127.0.0.1で起動されるため、safeurlがブロックする。
func TestNewSafeClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewURLGuard().NewSafeClient(5 * time.Second)
	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("expected error for loopback address request, got nil")
	}
}

// TestValidateURL は写真URLとして受け付けるURLと拒否するURLを検証する。
func TestValidateURL(t *testing.T) {
	guard := NewURLGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"公開https", "https://picsum.photos/seed/dho/600/400", false},
		{"公開http", "http://example.com/beetle.jpg", false},
		{"空文字列", "", true},
		{"ftpスキーム", "ftp://example.com/a.jpg", true},
		{"javascriptスキーム", "javascript:alert(1)", true},
		{"dataスキーム", "data:image/png;base64,AAAA", true},
		{"ホストなし", "https:///a.jpg", true},
		{"プライベートIP", "http://192.168.1.10/a.jpg", true},
		{"10系", "http://10.0.0.1/a.jpg", true},
		{"ループバック", "http://127.0.0.1:8080/a.jpg", true},
		{"localhost", "http://localhost/a.jpg", true},
		{"メタデータIP", "http://169.254.169.254/latest/meta-data/", true},
		{"GCPメタデータ", "http://metadata.google.internal/computeMetadata/v1/", true},
		{"IPv6ループバック", "http://[::1]/a.jpg", true},
		{"ゼロアドレス", "http://0.0.0.0/a.jpg", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

// TestURLGuardInterface はURLGuardインターフェースを実装していることをテストする。
func TestURLGuardInterface(t *testing.T) {
	var _ URLGuard = NewURLGuard()
}
